package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/fetcher"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
)

const (
	helloMD5 = "5d41402abc4b2a76b9719d911017c592"
	worldMD5 = "7d793037a0760186574b0282f2f435e7"
)

func TestPopulate(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/dist/alpha-1.0.tgz", "/dist/corrupt-1.0.tgz":
			io.WriteString(w, "hello")
		case "/dist/beta-2.0.tgz":
			io.WriteString(w, "world")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dest := t.TempDir()
	cached := filepath.Join(dest, "b", "beta-2.0.tgz")
	if err := os.MkdirAll(filepath.Dir(cached), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cached, []byte("world"), 0644); err != nil {
		t.Fatal(err)
	}

	pkgs := []manifest.Package{
		{Name: "alpha", MD5: helloMD5, URLs: []manifest.URL{
			{Text: "{{site_mirror}}/alpha-1.0.tgz"},
			{Text: srv.URL + "/dist/alpha-1.0.tgz", Canonical: true},
		}},
		{Name: "beta", MD5: worldMD5, URLs: []manifest.URL{{Text: srv.URL + "/dist/beta-2.0.tgz", Canonical: true}}},
		{Name: "corrupt", MD5: worldMD5, URLs: []manifest.URL{{Text: srv.URL + "/dist/corrupt-1.0.tgz", Canonical: true}}},
		{Name: "nocanon", MD5: worldMD5, URLs: []manifest.URL{{Text: srv.URL + "/dist/x.tgz"}}},
		{Name: "renamed", MD5: helloMD5, LocalFilename: "Renamed.tgz", URLs: []manifest.URL{{Text: srv.URL + "/dist/alpha-1.0.tgz", Canonical: true}}},
	}

	p := New(config.Config{BackoffUnit: config.DefaultBackoffUnit}, dest, fetcher.NewHTTPTransport(config.Config{}))
	results, err := p.Populate(context.Background(), pkgs)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}

	want := []Outcome{Downloaded, Cached, Failed, Failed, Downloaded}
	for i, res := range results {
		if res.Outcome != want[i] {
			t.Errorf("%s: outcome %s, want %s (%v)", res.Package, res.Outcome, want[i], res.Err)
		}
	}

	if _, err := os.Stat(filepath.Join(dest, "a", "alpha-1.0.tgz")); err != nil {
		t.Errorf("alpha should be cached under its first letter: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "R", "Renamed.tgz")); err != nil {
		t.Errorf("local filename should be used: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "c", "corrupt-1.0.tgz")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("corrupt download should be removed, stat err %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, path := range requests {
		if path == "/dist/beta-2.0.tgz" {
			t.Error("cached package must not be downloaded again")
		}
	}
	corruptRequests := 0
	for _, path := range requests {
		if path == "/dist/corrupt-1.0.tgz" {
			corruptRequests++
		}
	}
	if corruptRequests != 1 {
		t.Errorf("expected a single attempt for the corrupt package, got %d", corruptRequests)
	}
}

func TestPopulateAllCached(t *testing.T) {
	dest := t.TempDir()
	path := filepath.Join(dest, "a", "a.tgz")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	p := New(config.Config{}, dest, fetcher.NewHTTPTransport(config.Config{}))
	results, err := p.Populate(context.Background(), []manifest.Package{
		{Name: "a", MD5: helloMD5, URLs: []manifest.URL{{Text: "https://unreachable.invalid/a.tgz", Canonical: true}}},
	})
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if results[0].Outcome != Cached {
		t.Errorf("expected cached, got %s", results[0].Outcome)
	}
}
