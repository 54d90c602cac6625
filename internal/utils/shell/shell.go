package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"mvdan.cc/sh/v3/syntax"
)

// Executor runs command strings through the host shell. Every external tool
// the pipeline invokes (tar, unzip, npm, patch, autoreconf, 7z) goes through it.
type Executor interface {
	// Exec runs cmdStr in dir and returns its combined output.
	Exec(ctx context.Context, dir, cmdStr string) (string, error)
	// ExecWithInput runs cmdStr in dir with input on stdin.
	ExecWithInput(ctx context.Context, dir, input, cmdStr string) (string, error)
	// ExecWithStream runs cmdStr in dir, logging output lines as they arrive.
	ExecWithStream(ctx context.Context, dir, cmdStr string) (string, error)
	// IsCommandExist reports whether cmd resolves on PATH.
	IsCommandExist(cmd string) (bool, error)
}

// Default is the executor used by the package-level helpers. Tests swap it
// for a MockExecutor.
var Default Executor = &HostExecutor{}

// ExecCmd runs cmdStr with the Default executor.
func ExecCmd(ctx context.Context, dir, cmdStr string) (string, error) {
	return Default.Exec(ctx, dir, cmdStr)
}

// IsCommandExist checks cmd with the Default executor.
func IsCommandExist(cmd string) (bool, error) {
	return Default.IsCommandExist(cmd)
}

// HostExecutor executes commands on the local host.
type HostExecutor struct{}

// shellArgv returns the interpreter invocation, preferring bash.
func shellArgv(cmdStr string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", cmdStr}
	}
	for _, sh := range []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"} {
		if _, err := os.Stat(sh); err == nil {
			return []string{sh, "-c", cmdStr}
		}
	}
	return []string{"/bin/sh", "-c", cmdStr}
}

func (h *HostExecutor) command(ctx context.Context, dir, cmdStr string) *exec.Cmd {
	argv := shellArgv(cmdStr)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if dir != "" {
		logger.Logger().Debugf("Exec (in %s): [%s]", dir, cmdStr)
	} else {
		logger.Logger().Debugf("Exec: [%s]", cmdStr)
	}
	return cmd
}

// Exec runs a command and returns its output
func (h *HostExecutor) Exec(ctx context.Context, dir, cmdStr string) (string, error) {
	log := logger.Logger()
	output, err := h.command(ctx, dir, cmdStr).CombinedOutput()
	outputStr := string(output)
	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// ExecWithInput runs a command feeding inputStr on stdin
func (h *HostExecutor) ExecWithInput(ctx context.Context, dir, inputStr, cmdStr string) (string, error) {
	log := logger.Logger()
	cmd := h.command(ctx, dir, cmdStr)
	cmd.Stdin = strings.NewReader(inputStr)

	output, err := cmd.CombinedOutput()
	outputStr := string(output)
	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s with input: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// ExecWithStream executes a command and streams its output to the debug log
func (h *HostExecutor) ExecWithStream(ctx context.Context, dir, cmdStr string) (string, error) {
	log := logger.Logger()
	cmd := h.command(ctx, dir, cmdStr)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", cmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", cmdStr, err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", cmdStr, err)
	}

	var (
		wg  sync.WaitGroup
		out strings.Builder
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				out.WriteString(line)
				out.WriteByte('\n')
				log.Debugf(line)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				log.Infof(line)
			}
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return out.String(), fmt.Errorf("failed to wait for command %s: %w", cmdStr, err)
	}
	return out.String(), nil
}

// IsCommandExist checks if a command exists on the host PATH
func (h *HostExecutor) IsCommandExist(cmd string) (bool, error) {
	if _, err := exec.LookPath(cmd); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("looking up %s: %w", cmd, err)
	}
	return true, nil
}

// Join quotes each argument for the host shell and joins them into a
// command string.
func Join(args ...string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		q, err := quote(arg)
		if err != nil {
			return "", fmt.Errorf("quoting %q: %w", arg, err)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

func quote(arg string) (string, error) {
	if runtime.GOOS == "windows" {
		if arg == "" || strings.ContainsAny(arg, " \t\"") {
			return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`, nil
		}
		return arg, nil
	}
	return syntax.Quote(arg, syntax.LangBash)
}

// ExitCode extracts the process exit status carried by err. It returns 0
// for a nil error and 1 when err carries no status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		if code := coder.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
