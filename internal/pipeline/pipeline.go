// Package pipeline drives each manifest package through filtering,
// download, extraction, patching and reconfiguration.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/extractor"
	"github.com/open-edge-platform/tpfetch/internal/fetcher"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/patcher"
	"github.com/open-edge-platform/tpfetch/internal/platform"
	"github.com/open-edge-platform/tpfetch/internal/reconfigure"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// Filter decides whether a package is excluded on this host.
type Filter interface {
	Excluded(ctx context.Context, pkg manifest.Package) (manifest.Distribution, bool)
}

// Downloader places a verified artifact in the cache.
type Downloader interface {
	Download(ctx context.Context, urls []string, destPath, expectedMD5, mirror string) error
}

// Unpacker extracts an artifact into the working tree.
type Unpacker interface {
	Resolve(ctx context.Context, pkg manifest.Package, archive string) (*extractor.Plan, error)
	Unpack(ctx context.Context, plan *extractor.Plan) error
	Rename(plan *extractor.Plan) (string, error)
	DestinationPath(plan *extractor.Plan) string
}

// PatchApplier applies patches to an extracted tree.
type PatchApplier interface {
	Apply(ctx context.Context, destination string, patches []manifest.Patch) error
}

// Regenerator regenerates build scripts in an extracted tree.
type Regenerator interface {
	Run(ctx context.Context, destination string) error
}

// Components are the steps a Pipeline sequences.
type Components struct {
	Filter       Filter
	Fetcher      Downloader
	Extractor    Unpacker
	Patcher      PatchApplier
	Reconfigurer Regenerator
}

// Result is the outcome of one package.
type Result struct {
	Package manifest.Package
	State   State
	// FailedIn is the state a package was in when it was abandoned or
	// aborted.
	FailedIn    State
	Archive     string
	Destination string
	Exclusion   *manifest.Distribution
	Err         error
}

// Pipeline processes packages sequentially in manifest order.
type Pipeline struct {
	cfg config.Config
	c   Components
}

// New returns a Pipeline over the given components.
func New(cfg config.Config, c Components) *Pipeline {
	return &Pipeline{cfg: cfg, c: c}
}

// NewDefault wires the host implementations of every component.
func NewDefault(cfg config.Config, exec shell.Executor, detect platform.HostProvider) *Pipeline {
	return New(cfg, Components{
		Filter:       platform.NewMatcher(detect),
		Fetcher:      fetcher.New(cfg, fetcher.NewHTTPTransport(cfg)),
		Extractor:    extractor.New(cfg, exec),
		Patcher:      patcher.New(cfg, exec),
		Reconfigurer: reconfigure.New(cfg, exec),
	})
}

// Run processes pkgs in order. The first fatal error stops the run: the
// results of the packages handled so far are returned with that error.
// A package with an unsupported format is abandoned and the run goes on.
func (p *Pipeline) Run(ctx context.Context, pkgs []manifest.Package) ([]Result, error) {
	results := make([]Result, 0, len(pkgs))
	for _, pkg := range pkgs {
		res := p.process(ctx, pkg)
		results = append(results, res)
		if res.State == Aborted {
			return results, fmt.Errorf("package %s: %w", pkg.Name, res.Err)
		}
	}
	return results, nil
}

func (p *Pipeline) process(ctx context.Context, pkg manifest.Package) Result {
	log := logger.Logger()
	res := Result{Package: pkg, State: Pending}

	enter := func(s State) {
		log.Debugf("%s: %s -> %s", pkg.Name, res.State, s)
		res.State = s
	}
	fail := func(s State, err error) Result {
		res.FailedIn = res.State
		res.Err = err
		enter(s)
		return res
	}

	if spec, excluded := p.c.Filter.Excluded(ctx, pkg); excluded {
		log.Infof("Skipping %s: excluded on %s %s", pkg.Name, spec.Name, spec.Version)
		res.Exclusion = &spec
		enter(Filtered)
		return res
	}

	log.Infof("Processing %s ...", pkg.Name)

	enter(Fetching)
	res.Archive = p.cfg.CachePath(pkg.Filename())
	if p.cfg.DryRun {
		log.Infof("[dry-run] would download %s to %s", pkg.Filename(), res.Archive)
	} else if err := p.c.Fetcher.Download(ctx, pkg.URLTexts(), res.Archive, pkg.MD5, p.cfg.SiteMirror); err != nil {
		return fail(Aborted, err)
	}

	enter(Extracting)
	plan, err := p.c.Extractor.Resolve(ctx, pkg, res.Archive)
	if err != nil {
		if errors.Is(err, extractor.ErrUnsupportedFormat) {
			log.Errorf("Abandoning %s: %v", pkg.Name, err)
			return fail(Abandoned, err)
		}
		return fail(Aborted, err)
	}
	if err := p.c.Extractor.Unpack(ctx, plan); err != nil {
		return fail(Aborted, err)
	}
	res.Destination = p.c.Extractor.DestinationPath(plan)

	if pkg.Rename != "" {
		enter(Renaming)
		dest, err := p.c.Extractor.Rename(plan)
		if err != nil {
			return fail(Aborted, err)
		}
		res.Destination = dest
	}

	if len(pkg.Patches) > 0 {
		enter(Patching)
		if err := p.c.Patcher.Apply(ctx, res.Destination, pkg.Patches); err != nil {
			return fail(Aborted, err)
		}
	}

	if pkg.Autoreconf {
		enter(Reconfiguring)
		if err := p.c.Reconfigurer.Run(ctx, res.Destination); err != nil {
			return fail(Aborted, err)
		}
	}

	enter(Done)
	return res
}
