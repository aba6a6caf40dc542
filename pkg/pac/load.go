package pac

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the serialization of a PAC file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var (
	ErrEmptyDocument     = errors.New("pac: empty document")
	ErrUnsupportedFormat = errors.New("pac: unsupported format")
)

// FormatFromPath picks a format from the file extension. Unknown extensions
// are treated as YAML, which is a superset of JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads and parses a PAC file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pac %s: %w", path, err)
	}
	doc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("parse pac %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes data into a Document. Only syntax errors are reported here;
// a document of the wrong shape parses fine and is rejected by validation.
func Parse(data []byte, format Format) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	var v any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		v = fromJSONNumbers(v)
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return New(v), nil
}

// fromJSONNumbers turns json.Number values into int64 where exact, float64 otherwise.
func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = fromJSONNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = fromJSONNumbers(val)
		}
		return t
	default:
		return v
	}
}
