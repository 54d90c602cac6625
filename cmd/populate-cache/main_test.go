package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/tpfetch/internal/mirror"
)

const manifestTemplate = `<packages>
  <package>
    <name>alpha</name>
    <urls>
      <url>{{site_mirror}}/alpha-1.0.tgz</url>
      <url canonical="true">%[1]s/dist/alpha-1.0.tgz</url>
    </urls>
    <format>tgz</format>
    <md5>5d41402abc4b2a76b9719d911017c592</md5>
  </package>
  <package>
    <name>beta</name>
    <urls><url canonical="true">%[1]s/dist/%[2]s</url></urls>
    <format>zip</format>
    <md5>7d793037a0760186574b0282f2f435e7</md5>
    <local-filename>beta-2.0.zip</local-filename>
  </package>
</packages>
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dist/alpha-1.0.tgz":
			io.WriteString(w, "hello")
		case "/dist/beta.zip":
			io.WriteString(w, "world")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeManifest(t *testing.T, baseURL, betaPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "packages.xml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(manifestTemplate, baseURL, betaPath)), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prevLevel, prevConfig := logLevel, configFile
	t.Cleanup(func() {
		logLevel = prevLevel
		configFile = prevConfig
	})

	root := createRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPopulateCache(t *testing.T) {
	srv := newServer(t)
	dest := t.TempDir()
	manifestPath := writeManifest(t, srv.URL, "beta.zip")

	out, err := run(t, dest, "--file", manifestPath)
	if err != nil {
		t.Fatalf("populate-cache failed: %v", err)
	}
	if !strings.Contains(out, "0 cached, 2 downloaded, 0 failed") {
		t.Errorf("unexpected output %q", out)
	}
	for path, want := range map[string]string{
		filepath.Join(dest, "a", "alpha-1.0.tgz"): "hello",
		filepath.Join(dest, "b", "beta-2.0.zip"):  "world",
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
		if string(data) != want {
			t.Errorf("%s: got %q, want %q", path, data, want)
		}
	}

	out, err = run(t, dest, "--file", manifestPath)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(out, "2 cached, 0 downloaded, 0 failed") {
		t.Errorf("expected everything cached on second run, got %q", out)
	}
}

func TestPopulateCacheIncomplete(t *testing.T) {
	srv := newServer(t)
	dest := t.TempDir()

	out, err := run(t, dest, "--file", writeManifest(t, srv.URL, "missing.zip"))
	if !errors.Is(err, mirror.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if !strings.Contains(out, "0 cached, 1 downloaded, 1 failed") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(dest, "a", "alpha-1.0.tgz")); err != nil {
		t.Errorf("alpha should still be cached: %v", err)
	}
}

func TestPopulateCacheRequiresDestination(t *testing.T) {
	if _, err := run(t); err == nil {
		t.Fatal("expected an error without DEST")
	}
}
