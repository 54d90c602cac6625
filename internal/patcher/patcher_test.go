package patcher

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
)

func intPtr(i int) *int { return &i }

func writePatches(t *testing.T, dir string, names ...string) []manifest.Patch {
	t.Helper()
	var out []manifest.Patch
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("patch "+name+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		out = append(out, manifest.Patch{Path: name, Strip: intPtr(1)})
	}
	return out
}

func TestCommand(t *testing.T) {
	tests := []struct {
		dest  string
		patch manifest.Patch
		want  string
	}{
		{"/src/foo", manifest.Patch{Path: "a.patch"}, "patch -d /src/foo"},
		{"/src/foo", manifest.Patch{Path: "a.patch", Strip: intPtr(1)}, "patch -d /src/foo -p 1"},
		{"", manifest.Patch{Path: "a.patch", Strip: intPtr(0)}, "patch -p 0"},
	}
	for _, tt := range tests {
		if got := strings.Join(Command(tt.dest, tt.patch), " "); got != tt.want {
			t.Errorf("Command(%q, %v) = %q, want %q", tt.dest, tt.patch, got, tt.want)
		}
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	work := t.TempDir()
	patches := writePatches(t, work, "one.patch", "two.patch", "three.patch")

	mock := shell.NewMockExecutor()
	mock.Commands = []shell.MockCommand{{
		Pattern: `^patch `,
		Run: func(string) error {
			if len(mock.Calls) == 2 {
				return &shell.ExitStatusError{Code: 1}
			}
			return nil
		},
	}}

	p := New(config.Config{WorkDir: work}, mock)
	err := p.Apply(context.Background(), filepath.Join(work, "foo"), patches)

	var pae *PatchApplicationError
	if !errors.As(err, &pae) {
		t.Fatalf("expected PatchApplicationError, got %v", err)
	}
	if pae.Index != 1 || pae.Patch.Path != "two.patch" {
		t.Errorf("unexpected failing patch %+v", pae)
	}
	if len(mock.Calls) != 2 {
		t.Fatalf("third patch must not be attempted, calls: %+v", mock.Calls)
	}
	if mock.Calls[0].Input != "patch one.patch\n" || mock.Calls[1].Input != "patch two.patch\n" {
		t.Errorf("patches fed out of order: %+v", mock.Calls)
	}
	if mock.Calls[0].Dir != work {
		t.Errorf("patch should run in the working directory, got %s", mock.Calls[0].Dir)
	}
}

func TestApplyMissingPatchFile(t *testing.T) {
	mock := shell.NewMockExecutor(shell.MockCommand{Pattern: `^patch `})
	p := New(config.Config{WorkDir: t.TempDir()}, mock)

	err := p.Apply(context.Background(), "foo", []manifest.Patch{{Path: "missing.patch"}})
	var pae *PatchApplicationError
	if !errors.As(err, &pae) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected PatchApplicationError wrapping not-exist, got %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Errorf("patch must not run without a patch file")
	}
}

func TestApplyDryRun(t *testing.T) {
	work := t.TempDir()
	mock := shell.NewMockExecutor()
	p := New(config.Config{WorkDir: work, DryRun: true}, mock)

	if err := p.Apply(context.Background(), "foo", writePatches(t, work, "a.patch")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Errorf("dry run must not run patch, got %+v", mock.Calls)
	}
}

// TestApplyWithHostPatch checks the abort semantics against patch(1):
// the first patch's change is kept, the third never runs.
func TestApplyWithHostPatch(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not available")
	}
	work := t.TempDir()
	dest := filepath.Join(work, "foo")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "a.txt"), []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "b.txt"), []byte("other\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "c.txt"), []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	good := "--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-old\n+new\n"
	bad := "--- a/b.txt\n+++ b/b.txt\n@@ -1 +1 @@\n-missing\n+new\n"
	third := "--- a/c.txt\n+++ b/c.txt\n@@ -1 +1 @@\n-old\n+new\n"
	for name, body := range map[string]string{"1.patch": good, "2.patch": bad, "3.patch": third} {
		if err := os.WriteFile(filepath.Join(work, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	patches := []manifest.Patch{
		{Path: "1.patch", Strip: intPtr(1)},
		{Path: "2.patch", Strip: intPtr(1)},
		{Path: "3.patch", Strip: intPtr(1)},
	}

	err := New(config.Config{WorkDir: work}, &shell.HostExecutor{}).Apply(context.Background(), dest, patches)
	var pae *PatchApplicationError
	if !errors.As(err, &pae) || pae.Index != 1 {
		t.Fatalf("expected failure on the second patch, got %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "a.txt")); string(data) != "new\n" {
		t.Errorf("first patch should stay applied, a.txt = %q", data)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "c.txt")); string(data) != "old\n" {
		t.Errorf("third patch must not run, c.txt = %q", data)
	}
}
