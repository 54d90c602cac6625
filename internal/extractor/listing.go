package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

var zipTesting = regexp.MustCompile(`testing:\s+([\w\-\.]+)/`)

// ParseTarListing returns the top-level directory of a "tar tf" listing:
// the first whitespace-separated field of the first line, cut at its
// first path separator.
func ParseTarListing(out string) (string, error) {
	first, _, _ := strings.Cut(strings.TrimLeft(out, "\r\n"), "\n")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty archive listing")
	}
	return topLevel(fields[0]), nil
}

// ParseZipListing returns the first directory named by an "unzip -t"
// line such as "    testing: bar-2.0/LICENSE   OK".
func ParseZipListing(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if m := zipTesting.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// topLevel reduces an archive member name to its first path component.
func topLevel(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimLeft(name, "/")
	first, _, _ := strings.Cut(name, "/")
	return first
}
