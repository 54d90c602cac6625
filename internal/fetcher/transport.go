package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/utils/network"
	"github.com/schollz/progressbar/v3"
)

// Transport copies the content behind a URL into w.
type Transport interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// HTTPTransport fetches http, https and file URLs.
type HTTPTransport struct {
	client   *http.Client
	progress bool
	out      io.Writer
}

// NewHTTPTransport returns a transport using a TLS-hardened client. A
// byte progress bar is drawn on stderr in verbose mode.
func NewHTTPTransport(cfg config.Config) *HTTPTransport {
	return &HTTPTransport{
		client:   network.NewSecureHTTPClient(cfg.HTTPTimeout),
		progress: cfg.Verbose,
		out:      os.Stderr,
	}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parsing url: %w", err)
	}

	switch u.Scheme {
	case "file":
		return t.fetchFile(u, w)
	case "http", "https":
		return t.fetchHTTP(ctx, u, w)
	default:
		return 0, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (t *HTTPTransport) fetchFile(u *url.URL, w io.Writer) (int64, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (t *HTTPTransport) fetchHTTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	dst := w
	var bar *progressbar.ProgressBar
	if t.progress && resp.ContentLength > 0 {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionSetDescription(path.Base(u.Path)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		dst = io.MultiWriter(w, bar)
	}

	n, err := io.Copy(dst, resp.Body)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(t.out)
	}
	if err != nil {
		return n, fmt.Errorf("reading body: %w", err)
	}
	return n, nil
}
