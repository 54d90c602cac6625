package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

var (
	// ErrManifestNotFound is returned when the manifest file does not exist.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrManifestMalformed is returned when the manifest cannot be decoded
	// or does not satisfy the schema.
	ErrManifestMalformed = errors.New("manifest malformed")
)

// MalformedError carries the decoding or validation failure of a manifest.
type MalformedError struct {
	Path string
	Err  error
}

func (e *MalformedError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed manifest: %v", e.Err)
	}
	return fmt.Sprintf("malformed manifest %s: %v", e.Path, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is matches ErrManifestMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrManifestMalformed }

// Kind is the concrete syntax of a manifest document.
type Kind string

const (
	KindXML  Kind = "xml"
	KindYAML Kind = "yaml"
	KindTOML Kind = "toml"
)

// KindFromPath selects the syntax from the file extension.
func KindFromPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return KindXML, nil
	case ".yaml", ".yml":
		return KindYAML, nil
	case ".toml":
		return KindTOML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))
	}
}

//go:embed manifest.schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("loading manifest schema: %w", err)
	}
	schema, err := compiler.Compile("manifest.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling manifest schema: %w", err)
	}
	return schema, nil
})

// Load reads the manifest at path and returns its packages in document
// order.
func Load(path string) ([]Package, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Packages, nil
}

// LoadManifest reads and validates the manifest document at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	kind, err := KindFromPath(path)
	if err != nil {
		return nil, &MalformedError{Path: path, Err: err}
	}
	m, err := Decode(data, kind)
	if err != nil {
		var me *MalformedError
		if errors.As(err, &me) {
			me.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Decode parses and validates a manifest document of the given kind.
func Decode(data []byte, kind Kind) (*Manifest, error) {
	var m Manifest
	var err error
	switch kind {
	case KindXML:
		err = xml.Unmarshal(data, &m)
	case KindYAML:
		err = yaml.Unmarshal(data, &m)
	case KindTOML:
		err = toml.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("unsupported manifest kind %q", kind)
	}
	if err != nil {
		return nil, &MalformedError{Err: err}
	}
	m.normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest against the embedded JSON schema.
func (m *Manifest) Validate() error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	doc := *m
	if doc.Packages == nil {
		doc.Packages = []Package{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return &MalformedError{Err: err}
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return &MalformedError{Err: err}
	}
	if err := schema.Validate(v); err != nil {
		return &MalformedError{Err: err}
	}
	return nil
}

// ToYAML renders packages as a YAML manifest.
func ToYAML(packages []Package) ([]byte, error) {
	if packages == nil {
		packages = []Package{}
	}
	out, err := k8syaml.Marshal(Manifest{Packages: packages})
	if err != nil {
		return nil, fmt.Errorf("rendering manifest: %w", err)
	}
	return out, nil
}
