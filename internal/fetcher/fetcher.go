// Package fetcher downloads package artifacts into the cache, verifying
// them by MD5 and retrying across mirrors with a linear backoff.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/open-edge-platform/tpfetch/internal/checksum"
	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
)

// ErrChecksumMismatch is matched by *ChecksumMismatchError.
var ErrChecksumMismatch = checksum.ErrMismatch

// ChecksumMismatchError is returned once every round failed to produce a
// file with the expected digest. Got is the last computed digest and is
// empty when nothing was transferred.
type ChecksumMismatchError struct {
	Path     string
	Expected string
	Got      string
}

func (e *ChecksumMismatchError) Error() string {
	got := e.Got
	if got == "" {
		got = "<none>"
	}
	return fmt.Sprintf("md5sum %s, expected %s, doesn't match for the downloaded package %s", got, e.Expected, e.Path)
}

func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// TransportError is a failed transfer from a single URL.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("downloading %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithSleeper replaces the backoff sleeper, for tests.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// Fetcher downloads artifacts through a Transport.
type Fetcher struct {
	transport   Transport
	retries     int
	backoffUnit time.Duration
	verbose     bool
	sleep       Sleeper
}

// New returns a Fetcher configured from cfg.
func New(cfg config.Config, transport Transport, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport:   transport,
		retries:     cfg.Retries,
		backoffUnit: cfg.BackoffUnit,
		verbose:     cfg.IsDebugMode(),
		sleep:       SleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Download makes destPath hold a file whose MD5 is expectedMD5. A file
// already carrying that digest is kept without any transfer. Otherwise
// up to Retries+1 rounds are made over urls in order; URLs needing a site
// mirror are skipped when mirror is empty. Round r is followed by a sleep
// of r backoff units when another round remains.
func (f *Fetcher) Download(ctx context.Context, urls []string, destPath, expectedMD5, mirror string) error {
	log := logger.Logger()

	if _, err := os.Stat(destPath); err == nil {
		got, err := checksum.Verify(destPath, expectedMD5)
		if err == nil {
			log.Debugf("%s already cached with md5sum %s", filepath.Base(destPath), got)
			return nil
		}
		log.Infof("Removing stale %s: %v", destPath, err)
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("removing stale %s: %w", destPath, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", destPath, err)
	}

	lastSum := ""
	rounds := f.retries + 1
	for round := 1; round <= rounds; round++ {
		for _, raw := range urls {
			u, ok := manifest.ExpandURL(raw, mirror)
			if !ok {
				log.Debugf("Skipping %s: no site mirror configured", raw)
				continue
			}

			if err := f.transfer(ctx, u, destPath); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warnf("%v", err)
				continue
			}

			got, err := checksum.Verify(destPath, expectedMD5)
			if f.verbose {
				log.Debugf("Calculated md5sum: %s", got)
				log.Debugf("Expected md5sum: %s", expectedMD5)
			}
			if err == nil {
				return nil
			}
			if got != "" {
				lastSum = got
			}
			log.Warnf("Checksum mismatch for %s from %s: %v", filepath.Base(destPath), u, err)
			if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", destPath, rmErr)
			}
		}

		if round < rounds {
			wait := f.backoffUnit * time.Duration(round)
			log.Infof("Round %d/%d for %s failed, retrying in %s", round, rounds, filepath.Base(destPath), wait)
			if err := f.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return &ChecksumMismatchError{Path: destPath, Expected: expectedMD5, Got: lastSum}
}

// transfer streams u into destPath through an atomic temporary file.
func (f *Fetcher) transfer(ctx context.Context, u, destPath string) error {
	logger.Logger().Infof("Downloading %s", u)

	out, err := newAtomicFile(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer out.Cleanup()

	if _, err := f.transport.Fetch(ctx, u, out); err != nil {
		return &TransportError{URL: u, Err: err}
	}
	if err := out.Commit(); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}
