// Package patcher applies manifest patches to an extracted tree.
package patcher

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// PatchApplicationError identifies the first patch that failed. Patches
// before it stay applied; patches after it were not attempted.
type PatchApplicationError struct {
	Patch manifest.Patch
	Index int
	Err   error
}

func (e *PatchApplicationError) Error() string {
	return fmt.Sprintf("failed to apply patch %s (#%d): %v", e.Patch.Path, e.Index+1, e.Err)
}

func (e *PatchApplicationError) Unwrap() error { return e.Err }

// Patcher runs patch(1) through a shell executor.
type Patcher struct {
	cfg  config.Config
	exec shell.Executor
}

// New returns a Patcher. A nil exec selects shell.Default.
func New(cfg config.Config, exec shell.Executor) *Patcher {
	if exec == nil {
		exec = shell.Default
	}
	return &Patcher{cfg: cfg, exec: exec}
}

// Command returns the patch invocation for p against destination.
func Command(destination string, p manifest.Patch) []string {
	args := []string{"patch"}
	if destination != "" {
		args = append(args, "-d", destination)
	}
	if p.Strip != nil {
		args = append(args, "-p", strconv.Itoa(*p.Strip))
	}
	return args
}

// Apply applies patches in order, stopping at the first failure. Patch
// paths are relative to the working directory.
func (p *Patcher) Apply(ctx context.Context, destination string, patches []manifest.Patch) error {
	log := logger.Logger()

	for i, patch := range patches {
		cmd, err := shell.Join(Command(destination, patch)...)
		if err != nil {
			return &PatchApplicationError{Patch: patch, Index: i, Err: err}
		}
		if p.cfg.IsDebugMode() || p.cfg.DryRun {
			log.Infof("Patching %s <%s...", cmd, patch.Path)
		}
		if p.cfg.DryRun {
			continue
		}

		content, err := os.ReadFile(p.cfg.Path(patch.Path))
		if err != nil {
			return &PatchApplicationError{Patch: patch, Index: i, Err: err}
		}
		if _, err := p.exec.ExecWithInput(ctx, p.cfg.WorkDir, string(content), cmd); err != nil {
			log.Errorf("Failed to apply patch %s", patch.Path)
			return &PatchApplicationError{Patch: patch, Index: i, Err: err}
		}
	}
	return nil
}
