package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

// handler implements one archive format.
type handler interface {
	// destination inspects the archive for the directory it unpacks to.
	destination(ctx context.Context, archive string) (string, error)
	// unpack extracts the archive in plan.Dir.
	unpack(ctx context.Context, plan *Plan) error
}

// handlerFor maps a format tag to its handler. Windows hosts only handle
// tgz and zip, through 7z.
func (e *Extractor) handlerFor(pkg manifest.Package) (handler, error) {
	unsupported := &UnsupportedFormatError{Package: pkg.Name, Format: pkg.Format}

	if e.cfg.IsWindows() {
		switch pkg.Format {
		case manifest.FormatTgz:
			return &sevenZipHandler{e: e, twoStage: true}, nil
		case manifest.FormatZip:
			return &sevenZipHandler{e: e}, nil
		default:
			return nil, unsupported
		}
	}

	switch pkg.Format {
	case manifest.FormatTgz:
		return &tarHandler{e: e, compress: "z"}, nil
	case manifest.FormatTbz:
		return &tarHandler{e: e, compress: "j"}, nil
	case manifest.FormatZip:
		return &zipHandler{e: e}, nil
	case manifest.FormatFile:
		return &fileHandler{}, nil
	case manifest.FormatNpm:
		return &npmHandler{tarHandler: tarHandler{e: e, compress: "z"}}, nil
	case manifest.FormatTxz:
		return &tarStreamHandler{decompress: xzReader}, nil
	case manifest.FormatTzst:
		return &tarStreamHandler{decompress: zstdReader}, nil
	case manifest.FormatRpm:
		return &rpmHandler{}, nil
	default:
		return nil, unsupported
	}
}

// run joins args into a quoted command line and executes it in dir.
func (e *Extractor) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd, err := shell.Join(args...)
	if err != nil {
		return "", err
	}
	return e.exec.Exec(ctx, dir, cmd)
}

// tarHandler shells out to tar with a compression flag.
type tarHandler struct {
	e        *Extractor
	compress string
}

func (h *tarHandler) destination(ctx context.Context, archive string) (string, error) {
	out, err := h.e.run(ctx, "", "tar", h.compress+"tf", archive)
	if err != nil {
		return "", err
	}
	return ParseTarListing(out)
}

func (h *tarHandler) unpack(ctx context.Context, plan *Plan) error {
	_, err := h.e.run(ctx, plan.Dir, "tar", h.compress+"xvf", plan.Archive)
	return err
}

type zipHandler struct {
	e *Extractor
}

func (h *zipHandler) destination(ctx context.Context, archive string) (string, error) {
	out, err := h.e.run(ctx, "", "unzip", "-t", archive)
	if err != nil {
		return "", err
	}
	dest, _ := ParseZipListing(out)
	return dest, nil
}

func (h *zipHandler) unpack(ctx context.Context, plan *Plan) error {
	_, err := h.e.run(ctx, plan.Dir, "unzip", "-o", plan.Archive)
	return err
}

// fileHandler copies a single file into the tree.
type fileHandler struct{}

func (h *fileHandler) destination(_ context.Context, archive string) (string, error) {
	return filepath.Base(archive), nil
}

func (h *fileHandler) unpack(_ context.Context, plan *Plan) error {
	target := filepath.Join(plan.Dir, filepath.Base(plan.Archive))
	if plan.Package.UnpackDirectory == "" && plan.Destination != "" {
		target = filepath.Join(plan.Dir, plan.Destination)
	}
	return copyFile(plan.Archive, target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// npmHandler installs a module tarball into the shared module cache and
// copies the installed module into the project module directory.
type npmHandler struct {
	tarHandler
}

func (h *npmHandler) unpack(ctx context.Context, plan *Plan) error {
	cfg := h.e.cfg
	for _, dir := range []string{cfg.NodeModulesDir, cfg.NodeModulesTmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	installed := filepath.Join(cfg.NodeModulesTmpDir, plan.Package.Name)
	if !exists(installed) {
		if _, err := h.e.run(ctx, plan.Dir, "npm", "install", plan.Archive, "--prefix", cfg.CacheDir); err != nil {
			return err
		}
	}
	_, err := h.e.run(ctx, plan.Dir, "cp", "-af", installed, cfg.NodeModulesDir)
	return err
}

// sevenZipHandler extracts with 7z on Windows hosts. A tgz takes two
// passes: the gzip layer into the cache, then the inner tar.
type sevenZipHandler struct {
	e        *Extractor
	twoStage bool
}

func (h *sevenZipHandler) destination(context.Context, string) (string, error) {
	return "", nil
}

func (h *sevenZipHandler) unpack(ctx context.Context, plan *Plan) error {
	var out []string
	if plan.Package.UnpackDirectory != "" {
		out = append(out, "-o"+h.e.cfg.Path(plan.Package.UnpackDirectory))
	}

	if !h.twoStage {
		_, err := h.e.run(ctx, plan.Dir, append([]string{"7z", "x", plan.Archive}, out...)...)
		return err
	}

	if _, err := h.e.run(ctx, plan.Dir, "7z", "x", plan.Archive, "-o"+h.e.cfg.CacheDir); err != nil {
		return err
	}
	inner := strings.TrimSuffix(plan.Archive, filepath.Ext(plan.Archive))
	_, err := h.e.run(ctx, plan.Dir, append([]string{"7z", "x", inner}, out...)...)
	return err
}
