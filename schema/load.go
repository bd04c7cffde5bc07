package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tailscale/hujson"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/dblite/serializer"
)

// descriptor is the on-disk field list. Each entry of Fields is either a
// {name, type} table or a "name type" string.
type descriptor struct {
	Fields []any `json:"fields" yaml:"fields" toml:"fields"`
}

// Load reads a schema descriptor file. The format follows the extension:
//
//	.json, .jsonc  field list (comments and trailing commas allowed) or a
//	               JSON Schema object with "properties"
//	.yaml, .yml    field list
//	.toml          field list
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return fromJSON(data)
	case ".yaml", ".yml":
		var d descriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
		return d.schema()
	case ".toml":
		var d descriptor
		if _, err := toml.Decode(string(data), &d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
		return d.schema()
	default:
		return nil, fmt.Errorf("%w: unsupported descriptor format %q", ErrInvalid, filepath.Ext(path))
	}
}

func fromJSON(data []byte) (*Schema, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(std, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, ok := top["properties"]; ok {
		return FromJSONSchema(std)
	}

	var d descriptor
	if err := json.Unmarshal(std, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d.schema()
}

func (d descriptor) schema() (*Schema, error) {
	fields := make([]Field, 0, len(d.Fields))
	for i, raw := range d.Fields {
		switch v := raw.(type) {
		case string:
			fields = append(fields, parseField(v))
		case map[string]any:
			name, _ := v["name"].(string)
			typ, _ := v["type"].(string)
			codec, _ := v["serializer"].(string)
			fields = append(fields, Field{Name: name, Type: typ, Serializer: codec})
		default:
			return nil, fmt.Errorf("%w: fields[%d]: unexpected %T", ErrInvalid, i, raw)
		}
	}
	return New(fields...)
}

// JSON Schema primitive types and the column affinity they map to.
var jsonTypes = map[string]string{
	"string":  "TEXT",
	"integer": "INTEGER",
	"number":  "REAL",
	"boolean": "INTEGER",
}

// FromJSONSchema derives fields from the top-level "properties" of a JSON
// Schema, sorted by name, and keeps the compiled schema to validate documents.
// A property may set "x-column" to override the column definition. Object and
// array properties are stored with the "json" serializer unless
// "x-serializer" names another.
func FromJSONSchema(data []byte) (*Schema, error) {
	var doc struct {
		Properties map[string]struct {
			Type       any    `json:"type"`
			Column     string `json:"x-column"`
			Serializer string `json:"x-serializer"`
		} `json:"properties"`
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		p := doc.Properties[name]
		t, _ := p.Type.(string)
		codec := p.Serializer
		if codec == "" && (t == "object" || t == "array") {
			codec = serializer.NameJSON
		}
		typ := p.Column
		if typ == "" {
			typ = jsonTypes[t]
			if codec != "" {
				typ = "BLOB"
			}
		}
		fields = append(fields, Field{Name: name, Type: typ, Serializer: codec})
	}

	s, err := New(fields...)
	if err != nil {
		return nil, err
	}
	v, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid json schema: %v", ErrInvalid, err)
	}
	s.validator = v
	return s, nil
}
