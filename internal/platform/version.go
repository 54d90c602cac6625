package platform

import (
	"regexp"
	"strings"
)

var versionComponent = regexp.MustCompile(`\d+|[a-z]+|\.`)

// versionPart is one component of a loose version: a run of digits or any
// other run of characters.
type versionPart struct {
	text  string
	isNum bool
}

// parseLoose splits v into numeric and non-numeric components, dropping
// the dots between them. "1.10a" yields [1 10 a].
func parseLoose(v string) []versionPart {
	var parts []versionPart
	add := func(s string) {
		if s == "" || s == "." {
			return
		}
		if s[0] >= '0' && s[0] <= '9' {
			trimmed := strings.TrimLeft(s, "0")
			if trimmed == "" {
				trimmed = "0"
			}
			parts = append(parts, versionPart{text: trimmed, isNum: true})
			return
		}
		parts = append(parts, versionPart{text: s})
	}

	last := 0
	for _, loc := range versionComponent.FindAllStringIndex(v, -1) {
		add(v[last:loc[0]])
		add(v[loc[0]:loc[1]])
		last = loc[1]
	}
	add(v[last:])
	return parts
}

func comparePart(a, b versionPart) int {
	switch {
	case a.isNum && b.isNum:
		if len(a.text) != len(b.text) {
			if len(a.text) < len(b.text) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.text, b.text)
	case a.isNum:
		return -1
	case b.isNum:
		return 1
	default:
		return strings.Compare(a.text, b.text)
	}
}

// CompareVersions orders two version strings loosely: numeric components
// compare numerically, other components lexically, numbers sort before
// words and a strict prefix sorts first. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa, pb := parseLoose(a), parseLoose(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := comparePart(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

// VersionMatch reports whether the host version satisfies spec. A spec
// ending in '+' matches versions at or above it, a spec starting with '-'
// matches versions at or below it, anything else must be equal.
func VersionMatch(hostVersion, spec string) bool {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.HasSuffix(spec, "+"):
		return CompareVersions(hostVersion, strings.TrimSuffix(spec, "+")) >= 0
	case strings.HasPrefix(spec, "-"):
		return CompareVersions(hostVersion, strings.TrimPrefix(spec, "-")) <= 0
	default:
		return CompareVersions(hostVersion, spec) == 0
	}
}
