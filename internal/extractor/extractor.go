// Package extractor unpacks cached artifacts into the working tree and
// works out the directory each one produces.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// ErrUnsupportedFormat is matched by *UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError rejects a package whose format has no handler on
// this host. Only that package is abandoned.
type UnsupportedFormatError struct {
	Package string
	Format  manifest.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("package %s: unexpected format: %s", e.Package, e.Format)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// Plan is the resolved extraction of one package.
type Plan struct {
	Package manifest.Package
	Archive string
	// Destination is the directory the archive produces, relative to the
	// working directory. It is empty when it could not be determined.
	Destination string
	// Dir is the working directory of the extraction command.
	Dir string

	handler handler
}

// Extractor runs format handlers through a shell executor.
type Extractor struct {
	cfg  config.Config
	exec shell.Executor
}

// New returns an Extractor. A nil exec selects shell.Default.
func New(cfg config.Config, exec shell.Executor) *Extractor {
	if exec == nil {
		exec = shell.Default
	}
	return &Extractor{cfg: cfg, exec: exec}
}

// Extract unpacks archive for pkg and returns the absolute path of the
// resulting tree, after any rename. The path is empty when the tree could
// not be determined.
func (e *Extractor) Extract(ctx context.Context, pkg manifest.Package, archive string) (string, error) {
	plan, err := e.Resolve(ctx, pkg, archive)
	if err != nil {
		return "", err
	}
	if err := e.Unpack(ctx, plan); err != nil {
		return "", err
	}
	return e.Rename(plan)
}

// Resolve selects the handler for pkg and determines its destination:
// the unpack directory, then the explicit destination, then whatever the
// archive itself reports.
func (e *Extractor) Resolve(ctx context.Context, pkg manifest.Package, archive string) (*Plan, error) {
	h, err := e.handlerFor(pkg)
	if err != nil {
		logger.Logger().Errorf("%v", err)
		return nil, err
	}

	plan := &Plan{Package: pkg, Archive: archive, Dir: e.cfg.WorkDir, handler: h}
	switch {
	case pkg.UnpackDirectory != "":
		plan.Destination = pkg.UnpackDirectory
		if !e.cfg.IsWindows() {
			plan.Dir = e.cfg.Path(pkg.UnpackDirectory)
		}
	case pkg.Destination != "":
		plan.Destination = pkg.Destination
	case e.cfg.DryRun && !exists(archive):
		logger.Logger().Infof("[dry-run] %s is not cached, destination of %s unknown", archive, pkg.Name)
	default:
		dest, err := h.destination(ctx, archive)
		if err != nil {
			return nil, fmt.Errorf("determining destination of %s: %w", pkg.Name, err)
		}
		plan.Destination = dest
	}
	return plan, nil
}

// DestinationPath returns the absolute path of the plan's destination.
func (e *Extractor) DestinationPath(plan *Plan) string {
	if plan.Destination == "" {
		return ""
	}
	return e.cfg.Path(plan.Destination)
}

// Unpack cleans the destination and runs the format operation.
func (e *Extractor) Unpack(ctx context.Context, plan *Plan) error {
	log := logger.Logger()

	if err := e.clean(plan); err != nil {
		return err
	}

	if plan.Package.UnpackDirectory != "" {
		if e.cfg.DryRun {
			log.Infof("[dry-run] would create %s", plan.Package.UnpackDirectory)
		} else if err := os.MkdirAll(e.cfg.Path(plan.Package.UnpackDirectory), 0755); err != nil {
			return fmt.Errorf("creating unpack directory: %w", err)
		}
	}

	if e.cfg.DryRun {
		log.Infof("[dry-run] would extract %s (%s) in %s", plan.Archive, plan.Package.Format, plan.Dir)
		return nil
	}
	log.Infof("Extracting %s", filepath.Base(plan.Archive))
	if err := plan.handler.unpack(ctx, plan); err != nil {
		return fmt.Errorf("extracting %s: %w", plan.Package.Name, err)
	}
	return nil
}

// clean removes the rename target when it is a directory, otherwise the
// destination when it is a directory.
func (e *Extractor) clean(plan *Plan) error {
	var target string
	if plan.Package.Rename != "" && isDir(e.cfg.Path(plan.Package.Rename)) {
		target = e.cfg.Path(plan.Package.Rename)
	} else if plan.Destination != "" && isDir(e.cfg.Path(plan.Destination)) {
		target = e.cfg.Path(plan.Destination)
	}
	if target == "" {
		return nil
	}

	if e.cfg.DryRun {
		logger.Logger().Infof("[dry-run] would clean directory %s", target)
		return nil
	}
	logger.Logger().Debugf("Clean directory %s", target)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("cleaning %s: %w", target, err)
	}
	return nil
}

// Rename moves the destination to the package's rename target and returns
// the absolute path later steps operate on.
func (e *Extractor) Rename(plan *Plan) (string, error) {
	dest := e.DestinationPath(plan)
	if plan.Package.Rename == "" || dest == "" {
		return dest, nil
	}

	target := e.cfg.Path(plan.Package.Rename)
	if e.cfg.DryRun {
		logger.Logger().Infof("[dry-run] would rename %s to %s", dest, target)
		return target, nil
	}
	if err := os.Rename(dest, target); err != nil {
		return "", fmt.Errorf("renaming %s to %s: %w", dest, target, err)
	}
	logger.Logger().Debugf("Renamed %s to %s", dest, target)
	return target, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
