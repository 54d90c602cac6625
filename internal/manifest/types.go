// Package manifest loads the package manifest that drives the pipeline.
// The original packages.xml layout is supported along with YAML and TOML
// renditions of the same document.
package manifest

import (
	"encoding/xml"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the archive format tag of a package.
type Format string

const (
	FormatTgz  Format = "tgz"
	FormatTbz  Format = "tbz"
	FormatZip  Format = "zip"
	FormatFile Format = "file"
	FormatNpm  Format = "npm"
	FormatTxz  Format = "txz"
	FormatTzst Format = "tzst"
	FormatRpm  Format = "rpm"
)

// AllFormats enumerates every supported format tag.
var AllFormats = []Format{
	FormatTgz,
	FormatTbz,
	FormatZip,
	FormatFile,
	FormatNpm,
	FormatTxz,
	FormatTzst,
	FormatRpm,
}

// Known reports whether f is one of AllFormats.
func (f Format) Known() bool {
	for _, known := range AllFormats {
		if f == known {
			return true
		}
	}
	return false
}

// Manifest is the root of a manifest document.
type Manifest struct {
	XMLName  xml.Name  `xml:"packages" yaml:"-" json:"-" toml:"-"`
	Packages []Package `xml:"package" yaml:"packages" json:"packages" toml:"packages"`
}

// Package is one manifest entry. It is not modified after loading.
type Package struct {
	Name            string    `xml:"name" yaml:"name" json:"name" toml:"name"`
	URLs            []URL     `xml:"urls>url" yaml:"urls" json:"urls" toml:"urls"`
	Format          Format    `xml:"format" yaml:"format" json:"format" toml:"format"`
	MD5             string    `xml:"md5" yaml:"md5" json:"md5" toml:"md5"`
	LocalFilename   string    `xml:"local-filename,omitempty" yaml:"local-filename,omitempty" json:"local-filename,omitempty" toml:"local-filename,omitempty"`
	Destination     string    `xml:"destination,omitempty" yaml:"destination,omitempty" json:"destination,omitempty" toml:"destination,omitempty"`
	UnpackDirectory string    `xml:"unpack-directory,omitempty" yaml:"unpack-directory,omitempty" json:"unpack-directory,omitempty" toml:"unpack-directory,omitempty"`
	Rename          string    `xml:"rename,omitempty" yaml:"rename,omitempty" json:"rename,omitempty" toml:"rename,omitempty"`
	Patches         []Patch   `xml:"patches>patch,omitempty" yaml:"patches,omitempty" json:"patches,omitempty" toml:"patches,omitempty"`
	Platform        *Platform `xml:"platform,omitempty" yaml:"platform,omitempty" json:"platform,omitempty" toml:"platform,omitempty"`
	Autoreconf      bool      `xml:"autoreconf,omitempty" yaml:"autoreconf,omitempty" json:"autoreconf,omitempty" toml:"autoreconf,omitempty"`
}

// URL is a download location. At most one URL of a package is canonical.
type URL struct {
	Text      string `xml:",chardata" yaml:"url" json:"url" toml:"url"`
	Canonical bool   `xml:"canonical,attr,omitempty" yaml:"canonical,omitempty" json:"canonical,omitempty" toml:"canonical,omitempty"`
}

// UnmarshalYAML accepts either a bare URL string or a {url, canonical} map.
func (u *URL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		u.Text = node.Value
		u.Canonical = false
		return nil
	}
	type plain URL
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*u = URL(p)
	return nil
}

// Patch is a patch file applied to the extracted tree. Strip is the -p
// level handed to patch; nil leaves patch's default.
type Patch struct {
	Path  string `xml:",chardata" yaml:"path" json:"path" toml:"path"`
	Strip *int   `xml:"strip,attr,omitempty" yaml:"strip,omitempty" json:"strip,omitempty" toml:"strip,omitempty"`
}

// Platform restricts the hosts a package is prepared on.
type Platform struct {
	Exclude []Distribution `xml:"exclude>distribution" yaml:"exclude" json:"exclude" toml:"exclude"`
}

// Distribution is one excluded host. Version is a version spec: "14.04"
// (equal), "14.04+" (at least) or "-14.04" (at most).
type Distribution struct {
	Name    string `xml:"name" yaml:"name" json:"name" toml:"name"`
	Version string `xml:"version" yaml:"version" json:"version" toml:"version"`
}

// Exclusions returns the platform exclusions of the package, if any.
func (p Package) Exclusions() []Distribution {
	if p.Platform == nil {
		return nil
	}
	return p.Platform.Exclude
}

// URLTexts returns the package URLs in manifest order.
func (p Package) URLTexts() []string {
	out := make([]string, 0, len(p.URLs))
	for _, u := range p.URLs {
		out = append(out, u.Text)
	}
	return out
}

// CanonicalURL returns the single URL marked canonical.
func (p Package) CanonicalURL() (string, error) {
	var found []string
	for _, u := range p.URLs {
		if u.Canonical {
			found = append(found, u.Text)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("package %s: expected exactly one canonical url, found %d", p.Name, len(found))
	}
	return found[0], nil
}

func (p Patch) String() string {
	if p.Strip == nil {
		return p.Path
	}
	return fmt.Sprintf("%s (-p%d)", p.Path, *p.Strip)
}

// normalize trims the whitespace XML character data carries around values.
func (m *Manifest) normalize() {
	for i := range m.Packages {
		p := &m.Packages[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Format = Format(strings.TrimSpace(string(p.Format)))
		p.MD5 = strings.TrimSpace(p.MD5)
		p.LocalFilename = strings.TrimSpace(p.LocalFilename)
		p.Destination = strings.TrimSpace(p.Destination)
		p.UnpackDirectory = strings.TrimSpace(p.UnpackDirectory)
		p.Rename = strings.TrimSpace(p.Rename)
		for j := range p.URLs {
			p.URLs[j].Text = strings.TrimSpace(p.URLs[j].Text)
		}
		for j := range p.Patches {
			p.Patches[j].Path = strings.TrimSpace(p.Patches[j].Path)
		}
		if p.Platform != nil {
			for j := range p.Platform.Exclude {
				d := &p.Platform.Exclude[j]
				d.Name = strings.TrimSpace(d.Name)
				d.Version = strings.TrimSpace(d.Version)
			}
		}
	}
}
