package shell

import (
	"context"
	"fmt"
	"regexp"
)

// MockCommand describes the canned result for commands matching Pattern
// (a regular expression). Run, when set, is invoked with the working
// directory to emulate the command's side effects on disk.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
	Run     func(dir string) error
}

// MockCall records one command issued to a MockExecutor.
type MockCall struct {
	Dir   string
	Cmd   string
	Input string
}

// MockExecutor is an Executor returning canned output. Commands that match
// no pattern fail.
type MockExecutor struct {
	Commands []MockCommand
	// Existing lists the commands IsCommandExist reports as present.
	Existing map[string]bool
	Calls    []MockCall
}

// NewMockExecutor returns a MockExecutor answering with commands.
func NewMockExecutor(commands ...MockCommand) *MockExecutor {
	return &MockExecutor{Commands: commands, Existing: map[string]bool{}}
}

func (m *MockExecutor) run(dir, input, cmdStr string) (string, error) {
	m.Calls = append(m.Calls, MockCall{Dir: dir, Cmd: cmdStr, Input: input})
	for _, c := range m.Commands {
		matched, err := regexp.MatchString(c.Pattern, cmdStr)
		if err != nil {
			return "", fmt.Errorf("bad mock pattern %q: %w", c.Pattern, err)
		}
		if !matched {
			continue
		}
		if c.Run != nil {
			if err := c.Run(dir); err != nil {
				return c.Output, err
			}
		}
		return c.Output, c.Error
	}
	return "", fmt.Errorf("unexpected command: %s", cmdStr)
}

func (m *MockExecutor) Exec(_ context.Context, dir, cmdStr string) (string, error) {
	return m.run(dir, "", cmdStr)
}

func (m *MockExecutor) ExecWithInput(_ context.Context, dir, input, cmdStr string) (string, error) {
	return m.run(dir, input, cmdStr)
}

func (m *MockExecutor) ExecWithStream(_ context.Context, dir, cmdStr string) (string, error) {
	return m.run(dir, "", cmdStr)
}

func (m *MockExecutor) IsCommandExist(cmd string) (bool, error) {
	return m.Existing[cmd], nil
}

// CallsMatching returns the recorded calls whose command matches pattern.
func (m *MockExecutor) CallsMatching(pattern string) []MockCall {
	re := regexp.MustCompile(pattern)
	var out []MockCall
	for _, c := range m.Calls {
		if re.MatchString(c.Cmd) {
			out = append(out, c)
		}
	}
	return out
}

// ExitStatusError is a command failure with an exit status, for mocks.
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode returns the exit status.
func (e *ExitStatusError) ExitCode() int { return e.Code }
