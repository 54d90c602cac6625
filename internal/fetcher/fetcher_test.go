package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/open-edge-platform/tpfetch/internal/config"
)

const (
	goodContent = "hello"
	goodMD5     = "5d41402abc4b2a76b9719d911017c592"
	badMD5      = "d41d8cd98f00b204e9800998ecf8427e" // md5 of ""
)

// fakeTransport serves canned bodies per URL and records every call.
type fakeTransport struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeTransport) Fetch(_ context.Context, rawURL string, w io.Writer) (int64, error) {
	f.calls = append(f.calls, rawURL)
	if err := f.errs[rawURL]; err != nil {
		return 0, err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return 0, fmt.Errorf("404 for %s", rawURL)
	}
	n, err := io.WriteString(w, body)
	return int64(n), err
}

type sleepRecorder struct {
	total time.Duration
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	s.total += d
	return nil
}

func testConfig(retries int) config.Config {
	return config.Config{Retries: retries, BackoffUnit: config.DefaultBackoffUnit}
}

func TestDownloadIdempotent(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	if err := os.WriteFile(dest, []byte(goodContent), 0644); err != nil {
		t.Fatal(err)
	}
	tr := &fakeTransport{}
	sleeper := &sleepRecorder{}
	f := New(testConfig(5), tr, WithSleeper(sleeper.sleep))

	if err := f.Download(context.Background(), []string{"http://a/foo.tgz"}, dest, goodMD5, ""); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Errorf("expected zero transfers, got %v", tr.calls)
	}
	if len(sleeper.waits) != 0 {
		t.Errorf("expected no sleeps, got %v", sleeper.waits)
	}
}

func TestDownloadReplacesStaleFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	if err := os.WriteFile(dest, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	tr := &fakeTransport{bodies: map[string]string{"http://a/foo.tgz": goodContent}}
	f := New(testConfig(5), tr, WithSleeper((&sleepRecorder{}).sleep))

	if err := f.Download(context.Background(), []string{"http://a/foo.tgz"}, dest, goodMD5, ""); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != goodContent {
		t.Errorf("expected fresh content, got %q, %v", data, err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("expected one transfer, got %d", len(tr.calls))
	}
}

func TestDownloadBoundedRetry(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	urls := []string{"http://a/foo.tgz", "http://b/foo.tgz"}
	tr := &fakeTransport{bodies: map[string]string{urls[0]: "", urls[1]: ""}}
	sleeper := &sleepRecorder{}
	f := New(testConfig(5), tr, WithSleeper(sleeper.sleep))

	err := f.Download(context.Background(), urls, dest, goodMD5, "")

	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %v", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Error("expected error to match ErrChecksumMismatch")
	}
	if mismatch.Got != badMD5 || mismatch.Expected != goodMD5 || mismatch.Path != dest {
		t.Errorf("unexpected error detail %+v", mismatch)
	}
	if len(tr.calls) != 6*len(urls) {
		t.Errorf("expected %d transfers, got %d", 6*len(urls), len(tr.calls))
	}
	if sleeper.total != 150*time.Second {
		t.Errorf("expected 150s of backoff, got %s", sleeper.total)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 40 * time.Second, 50 * time.Second}
	if fmt.Sprint(sleeper.waits) != fmt.Sprint(want) {
		t.Errorf("unexpected waits %v", sleeper.waits)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("mismatched file should be removed, stat err %v", err)
	}
}

func TestDownloadMirrorPlaceholder(t *testing.T) {
	tests := []struct {
		name      string
		mirror    string
		wantCalls []string
	}{
		{"skipped without mirror", "", []string{"http://upstream/foo.tgz"}},
		{"substituted with mirror", "http://mirror", []string{"http://mirror/foo.tgz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "foo.tgz")
			tr := &fakeTransport{bodies: map[string]string{
				"http://mirror/foo.tgz":   goodContent,
				"http://upstream/foo.tgz": goodContent,
			}}
			f := New(testConfig(5), tr, WithSleeper((&sleepRecorder{}).sleep))
			urls := []string{"{{ site_mirror }}/foo.tgz", "http://upstream/foo.tgz"}
			if err := f.Download(context.Background(), urls, dest, goodMD5, tt.mirror); err != nil {
				t.Fatalf("Download failed: %v", err)
			}
			if fmt.Sprint(tr.calls) != fmt.Sprint(tt.wantCalls) {
				t.Errorf("calls = %v, want %v", tr.calls, tt.wantCalls)
			}
		})
	}
}

func TestDownloadTransportErrorFallsThrough(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	tr := &fakeTransport{
		bodies: map[string]string{"http://b/foo.tgz": goodContent},
		errs:   map[string]error{"http://a/foo.tgz": errors.New("connection refused")},
	}
	sleeper := &sleepRecorder{}
	f := New(testConfig(5), tr, WithSleeper(sleeper.sleep))

	if err := f.Download(context.Background(), []string{"http://a/foo.tgz", "http://b/foo.tgz"}, dest, goodMD5, ""); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(tr.calls) != 2 || len(sleeper.waits) != 0 {
		t.Errorf("expected success within the first round, calls %v waits %v", tr.calls, sleeper.waits)
	}
}

func TestDownloadSucceedsInLaterRound(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	tr := &fakeTransport{bodies: map[string]string{}}
	sleeper := &sleepRecorder{}
	f := New(testConfig(5), tr, WithSleeper(func(ctx context.Context, d time.Duration) error {
		// The mirror comes back after the first backoff.
		tr.bodies["http://a/foo.tgz"] = goodContent
		return sleeper.sleep(ctx, d)
	}))

	if err := f.Download(context.Background(), []string{"http://a/foo.tgz"}, dest, goodMD5, ""); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(tr.calls) != 2 || sleeper.total != 10*time.Second {
		t.Errorf("expected two transfers and one 10s wait, got %v and %s", tr.calls, sleeper.total)
	}
}

func TestDownloadNoRetries(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	tr := &fakeTransport{}
	sleeper := &sleepRecorder{}
	f := New(testConfig(0), tr, WithSleeper(sleeper.sleep))

	err := f.Download(context.Background(), []string{"http://a/foo.tgz"}, dest, goodMD5, "")
	var mismatch *ChecksumMismatchError
	if !errors.As(err, &mismatch) || mismatch.Got != "" {
		t.Fatalf("expected empty-digest mismatch, got %v", err)
	}
	if len(tr.calls) != 1 || len(sleeper.waits) != 0 {
		t.Errorf("expected one transfer and no sleep, got %v %v", tr.calls, sleeper.waits)
	}
}

func TestDownloadCancelled(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "foo.tgz")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := New(testConfig(5), &fakeTransport{})

	err := f.Download(ctx, []string{"http://a/foo.tgz"}, dest, goodMD5, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/foo.tgz" {
			io.WriteString(w, goodContent)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(config.Config{Verbose: true})
	tr.out = io.Discard

	var sb strings.Builder
	n, err := tr.Fetch(context.Background(), srv.URL+"/foo.tgz", &sb)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if n != int64(len(goodContent)) || sb.String() != goodContent {
		t.Errorf("unexpected body %q (%d bytes)", sb.String(), n)
	}

	if _, err := tr.Fetch(context.Background(), srv.URL+"/missing.tgz", io.Discard); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := tr.Fetch(context.Background(), "ftp://host/foo.tgz", io.Discard); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestHTTPTransportFileURL(t *testing.T) {
	src := filepath.Join(t.TempDir(), "local.tgz")
	if err := os.WriteFile(src, []byte(goodContent), 0644); err != nil {
		t.Fatal(err)
	}
	tr := NewHTTPTransport(config.Config{})

	var sb strings.Builder
	if _, err := tr.Fetch(context.Background(), "file://"+filepath.ToSlash(src), &sb); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if sb.String() != goodContent {
		t.Errorf("unexpected body %q", sb.String())
	}
}

func TestDownloadOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, goodContent)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "cache", "foo.tgz")
	f := New(testConfig(1), NewHTTPTransport(config.Config{}))
	if err := f.Download(context.Background(), []string{srv.URL + "/foo.tgz"}, dest, goodMD5, ""); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != goodContent {
		t.Errorf("unexpected cached content %q", data)
	}
}
