// Package reconfigure regenerates autotools build scripts in a patched tree.
package reconfigure

import (
	"context"
	"fmt"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// Command is the regeneration command run inside the destination.
const Command = "autoreconf --force --install"

// Error reports a failed autoreconf run. Code is its exit status and
// becomes the process exit code.
type Error struct {
	Dir  string
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("autoreconf returned with error code %d in %s: %v", e.Code, e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the autoreconf exit status.
func (e *Error) ExitCode() int { return e.Code }

// Reconfigurer runs autoreconf through a shell executor.
type Reconfigurer struct {
	cfg  config.Config
	exec shell.Executor
}

// New returns a Reconfigurer. A nil exec selects shell.Default.
func New(cfg config.Config, exec shell.Executor) *Reconfigurer {
	if exec == nil {
		exec = shell.Default
	}
	return &Reconfigurer{cfg: cfg, exec: exec}
}

// Run executes autoreconf inside destination.
func (r *Reconfigurer) Run(ctx context.Context, destination string) error {
	if r.cfg.DryRun {
		logger.Logger().Infof("[dry-run] would run %s in %s", Command, destination)
		return nil
	}
	if destination == "" {
		return &Error{Code: 1, Err: fmt.Errorf("no destination to reconfigure")}
	}

	logger.Logger().Infof("Running %s in %s", Command, destination)
	if _, err := r.exec.ExecWithStream(ctx, destination, Command); err != nil {
		return &Error{Dir: destination, Code: shell.ExitCode(err), Err: err}
	}
	return nil
}
