// Package mirror populates a flat download cache from the manifest's
// canonical URLs, for serving as a site mirror.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/open-edge-platform/tpfetch/internal/checksum"
	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/fetcher"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
)

// ErrIncomplete is returned when at least one package could not be cached.
var ErrIncomplete = errors.New("mirror incomplete")

// Outcome is what happened to one package.
type Outcome int

const (
	Cached Outcome = iota
	Downloaded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Cached:
		return "cached"
	case Downloaded:
		return "downloaded"
	default:
		return "failed"
	}
}

// Result is the outcome for one package.
type Result struct {
	Package string
	Path    string
	Outcome Outcome
	Err     error
}

// Populator fills a cache laid out as DEST/<first letter>/<filename>.
type Populator struct {
	dest    string
	mirror  string
	fetcher *fetcher.Fetcher
}

// New returns a Populator writing below dest. Each package gets a single
// download attempt from its canonical URL.
func New(cfg config.Config, dest string, transport fetcher.Transport) *Populator {
	single := cfg
	single.Retries = 0
	return &Populator{
		dest:    dest,
		mirror:  cfg.SiteMirror,
		fetcher: fetcher.New(single, transport),
	}
}

// Path returns the cache location of filename.
func (p *Populator) Path(filename string) string {
	return filepath.Join(p.dest, filename[:1], filename)
}

// Populate caches every package. Failures are logged and the remaining
// packages are still processed; ErrIncomplete is returned at the end if
// any package failed.
func (p *Populator) Populate(ctx context.Context, pkgs []manifest.Package) ([]Result, error) {
	results := make([]Result, 0, len(pkgs))
	failed := 0
	for _, pkg := range pkgs {
		res := p.populate(ctx, pkg)
		if res.Outcome == Failed {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return append(results, res), ctxErr
			}
			failed++
		}
		results = append(results, res)
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d packages failed", ErrIncomplete, failed, len(pkgs))
	}
	return results, nil
}

func (p *Populator) populate(ctx context.Context, pkg manifest.Package) Result {
	log := logger.Logger()
	res := Result{Package: pkg.Name, Outcome: Failed}

	canonical, err := pkg.CanonicalURL()
	if err != nil {
		log.Errorf("%v", err)
		res.Err = err
		return res
	}
	filename, err := pkg.MirrorFilename()
	if err != nil || filename == "" || filename == "/" || filename == "." {
		res.Err = fmt.Errorf("package %s: cannot derive a filename from %s: %v", pkg.Name, canonical, err)
		log.Errorf("%v", res.Err)
		return res
	}
	res.Path = p.Path(filename)

	if got, err := checksum.Verify(res.Path, pkg.MD5); err == nil {
		log.Infof("File %s found, checksum matches", filename)
		res.Outcome = Cached
		return res
	} else if got != "" {
		log.Warnf("File %s found, but checksum mismatch (found: '%s' expected: '%s')", filename, got, pkg.MD5)
	} else {
		log.Infof("File %s missing, will download", filename)
	}

	if err := p.fetcher.Download(ctx, []string{canonical}, res.Path, pkg.MD5, p.mirror); err != nil {
		var mismatch *fetcher.ChecksumMismatchError
		if errors.As(err, &mismatch) {
			log.Errorf("File %s checksum error (found: '%s' expected: '%s')", filename, mismatch.Got, pkg.MD5)
		} else {
			log.Errorf("File %s: %v", filename, err)
		}
		res.Err = err
		return res
	}
	log.Infof("File %s downloaded, checksum matches", filename)
	res.Outcome = Downloaded
	return res
}
