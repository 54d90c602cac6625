package manifest

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// queryFilename extracts the filename from download endpoints such as
// "download?file=foo-1.0.tgz".
var queryFilename = regexp.MustCompile(`^\w+\?\w+=(.*)`)

// siteMirrorToken matches the mirror placeholder, with or without the
// inner spaces of the original "{{ site_mirror }}" spelling.
var siteMirrorToken = regexp.MustCompile(`\{\{\s*site_mirror\s*\}\}`)

// Filename returns the cache filename of the package: LocalFilename when
// set, otherwise the last segment of the first URL.
func (p Package) Filename() string {
	if p.LocalFilename != "" {
		return p.LocalFilename
	}
	if len(p.URLs) == 0 {
		return ""
	}
	return FilenameFromURL(p.URLs[0].Text)
}

// FilenameFromURL returns the text after the last '/' of raw, reduced to
// the query value for "word?word=value" style segments.
func FilenameFromURL(raw string) string {
	name := raw
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		name = raw[i+1:]
	}
	if m := queryFilename.FindStringSubmatch(name); m != nil {
		name = m[1]
	}
	return name
}

// MirrorFilename is the filename used by the cache populator: LocalFilename
// when set, otherwise the basename of the canonical URL's path.
func (p Package) MirrorFilename() (string, error) {
	if p.LocalFilename != "" {
		return p.LocalFilename, nil
	}
	canonical, err := p.CanonicalURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return "", err
	}
	return path.Base(u.Path), nil
}

// HasSiteMirror reports whether raw carries the mirror placeholder.
func HasSiteMirror(raw string) bool {
	return siteMirrorToken.MatchString(raw)
}

// ExpandURL substitutes the mirror placeholder in raw with mirror. It
// returns false when raw needs a mirror and none is configured.
func ExpandURL(raw, mirror string) (string, bool) {
	if !HasSiteMirror(raw) {
		return raw, true
	}
	if mirror == "" {
		return "", false
	}
	return siteMirrorToken.ReplaceAllLiteralString(raw, mirror), true
}
