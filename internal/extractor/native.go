package extractor

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sassoftware/go-rpmutils"
	"github.com/ulikunitz/xz"
)

// decompressor wraps a compressed stream. The returned closer releases
// decoder resources.
type decompressor func(r io.Reader) (io.Reader, func(), error)

func xzReader(r io.Reader) (io.Reader, func(), error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	return xr, func() {}, nil
}

func zstdReader(r io.Reader) (io.Reader, func(), error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return zr, zr.Close, nil
}

// tarStreamHandler reads compressed tarballs in-process.
type tarStreamHandler struct {
	decompress decompressor
}

func (h *tarStreamHandler) open(archive string) (*tar.Reader, func(), error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, nil, err
	}
	r, release, err := h.decompress(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return tar.NewReader(r), func() { release(); f.Close() }, nil
}

func (h *tarStreamHandler) destination(_ context.Context, archive string) (string, error) {
	tr, closeFn, err := h.open(archive)
	if err != nil {
		return "", err
	}
	defer closeFn()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("empty archive listing")
		}
		if err != nil {
			return "", fmt.Errorf("error reading tar: %w", err)
		}
		if top := topLevel(hdr.Name); top != "" && top != "." {
			return top, nil
		}
	}
}

func (h *tarStreamHandler) unpack(_ context.Context, plan *Plan) error {
	tr, closeFn, err := h.open(plan.Archive)
	if err != nil {
		return err
	}
	defer closeFn()
	return untar(tr, plan.Dir)
}

// untar writes the entries of tr below dir, refusing names that escape it.
func untar(tr *tar.Reader, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent dir: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create parent dir: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			source, err := safeJoin(root, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create link %s: %w", target, err)
			}
		}
	}
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes %s", name, root)
	}
	return target, nil
}

// rpmHandler expands an RPM payload into <name>-<version>.
type rpmHandler struct{}

func (h *rpmHandler) read(archive string, fn func(*rpmutils.Rpm) error) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return fmt.Errorf("reading rpm %s: %w", archive, err)
	}
	return fn(rpm)
}

func (h *rpmHandler) destination(_ context.Context, archive string) (string, error) {
	var dest string
	err := h.read(archive, func(rpm *rpmutils.Rpm) error {
		nevra, err := rpm.Header.GetNEVRA()
		if err != nil {
			return err
		}
		if nevra.Name == "" {
			return errors.New("rpm header carries no name")
		}
		dest = nevra.Name + "-" + nevra.Version
		return nil
	})
	return dest, err
}

func (h *rpmHandler) unpack(_ context.Context, plan *Plan) error {
	target := plan.Dir
	if plan.Package.UnpackDirectory == "" && plan.Destination != "" {
		target = filepath.Join(plan.Dir, plan.Destination)
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}
	return h.read(plan.Archive, func(rpm *rpmutils.Rpm) error {
		return rpm.ExpandPayload(target)
	})
}
