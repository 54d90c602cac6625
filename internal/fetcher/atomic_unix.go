//go:build !windows

package fetcher

import "github.com/google/renameio"

// atomicFile collects a transfer and replaces its target on Commit.
type atomicFile struct {
	*renameio.PendingFile
}

func newAtomicFile(path string) (*atomicFile, error) {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return nil, err
	}
	// TempFile creates 0600 files; cached artifacts are world readable.
	if err := pf.Chmod(0644); err != nil {
		pf.Cleanup()
		return nil, err
	}
	return &atomicFile{PendingFile: pf}, nil
}

func (f *atomicFile) Commit() error {
	return f.CloseAtomicallyReplace()
}
