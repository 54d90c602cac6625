package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-edge-platform/tpfetch/internal/pipeline"
)

// StringListReport is a titled list appended to a report file.
type StringListReport struct {
	Title string
	Items []string
}

// FetchedFiles lists the cached artifacts of the packages that were
// fetched in a run.
func FetchedFiles(results []pipeline.Result) StringListReport {
	r := StringListReport{Title: "FetchedFiles", Items: []string{}}
	for _, res := range results {
		if res.Archive == "" || (res.FailedIn == pipeline.Fetching && res.Err != nil) {
			continue
		}
		r.Items = append(r.Items, res.Archive)
	}
	return r
}

// safeTitle replaces anything but ASCII letters and digits with '_'.
func safeTitle(title string) string {
	if title == "" {
		title = "untitled"
	}
	out := make([]rune, 0, len(title))
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// AppendTo appends the items, one per line, followed by an empty line. If
// path is an existing directory the list goes to fetchurl-<title>.txt in it.
func (r StringListReport) AppendTo(path string) (string, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, fmt.Sprintf("fetchurl-%s.txt", safeTitle(r.Title)))
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating base path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	for _, item := range r.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing to file: %w", err)
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return "", fmt.Errorf("writing new line to file: %w", err)
	}
	return path, nil
}
