// Package schema describes the fixed field list a store binds to a table.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stevemurr/dblite/criteria"
	"github.com/stevemurr/dblite/serializer"
)

var (
	// ErrInvalid is returned for malformed field descriptors.
	ErrInvalid = errors.New("invalid schema")

	// ErrDocument is returned when a document does not fit the schema.
	ErrDocument = errors.New("document does not match schema")
)

// Names SQLite reserves for the implicit row identity.
var reserved = map[string]bool{"rowid": true, "oid": true, "_rowid_": true}

// Field is one column. Type is passed verbatim into CREATE TABLE and may
// carry constraints, e.g. "INTEGER NOT NULL DEFAULT 0".
//
// A field with a Serializer holds structured values (maps, lists) encoded
// by that serializer instead of a scalar.
type Field struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Serializer string `json:"serializer,omitempty" yaml:"serializer,omitempty" toml:"serializer,omitempty"`
}

// Codec returns the field's serializer, or nil for a scalar field.
func (f Field) Codec() serializer.Serializer {
	if f.Serializer == "" {
		return nil
	}
	c, _ := serializer.Lookup(f.Serializer)
	return c
}

// Definition returns the column definition used in CREATE TABLE.
func (f Field) Definition() string {
	if f.Type == "" {
		return criteria.Quote(f.Name)
	}
	return criteria.Quote(f.Name) + " " + f.Type
}

// Blob reports whether the column is declared as a BLOB.
func (f Field) Blob() bool {
	return strings.Contains(strings.ToUpper(f.Type), "BLOB")
}

// Schema is an ordered, duplicate-free field list. It is immutable once built.
type Schema struct {
	fields    []Field
	index     map[string]int
	validator *gojsonschema.Schema
}

// New builds a schema from fields, in order.
func New(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalid)
	}
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		f.Type = strings.TrimSpace(f.Type)
		f.Serializer = strings.TrimSpace(f.Serializer)
		if !criteria.ValidIdent(f.Name) {
			return nil, fmt.Errorf("%w: bad field name %q", ErrInvalid, f.Name)
		}
		if reserved[strings.ToLower(f.Name)] {
			return nil, fmt.Errorf("%w: field name %q is reserved for the row identity", ErrInvalid, f.Name)
		}
		if strings.ContainsAny(f.Type, ";") {
			return nil, fmt.Errorf("%w: field %q: type annotation may not contain ';'", ErrInvalid, f.Name)
		}
		if f.Serializer != "" {
			if _, err := serializer.Lookup(f.Serializer); err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrInvalid, f.Name, err)
			}
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalid, f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Parse builds a schema from "name[:serializer] [type...]" descriptors, e.g.
// Parse("name TEXT", "age INTEGER", "note", "tags:json TEXT").
func Parse(defs ...string) (*Schema, error) {
	fields := make([]Field, 0, len(defs))
	for _, d := range defs {
		fields = append(fields, parseField(d))
	}
	return New(fields...)
}

func parseField(def string) Field {
	head, typ, _ := strings.Cut(strings.TrimSpace(def), " ")
	name, codec, _ := strings.Cut(head, ":")
	return Field{Name: name, Type: typ, Serializer: codec}
}

// Fields returns a copy of the field list.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Names returns the field names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Has reports whether name is a schema field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Columns returns the comma-separated column definitions for CREATE TABLE.
func (s *Schema) Columns() string {
	defs := make([]string, len(s.fields))
	for i, f := range s.fields {
		defs[i] = f.Definition()
	}
	return strings.Join(defs, ", ")
}

// Order returns the keys of doc sorted by schema position. Keys not in the
// schema sort last, by name.
func (s *Schema) Order(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, iok := s.index[keys[i]]
		pj, jok := s.index[keys[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// Validate checks that every key of doc is a schema field, that scalar
// fields hold scalars and, when the schema came from a JSON Schema, that doc
// satisfies it.
func (s *Schema) Validate(doc map[string]any) error {
	var unknown []string
	for k, v := range doc {
		f, ok := s.Field(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if f.Serializer == "" && !criteria.IsScalar(v) {
			return fmt.Errorf("%w: field %q holds a %T, not a scalar", ErrDocument, k, v)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown fields: %s", ErrDocument, strings.Join(unknown, ", "))
	}
	if s.validator == nil {
		return nil
	}

	res, err := s.validator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocument, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrDocument, strings.Join(msgs, "; "))
	}
	return nil
}

// Encode converts a validated document to the values bound for each key:
// scalars in their canonical form, serialized fields as bytes. Nil stays nil.
func (s *Schema) Encode(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		f, ok := s.Field(k)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrDocument, k)
		}
		if v == nil {
			out[k] = nil
			continue
		}
		if codec := f.Codec(); codec != nil {
			b, err := codec.Dumps(v)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %s: %v", ErrDocument, k, f.Serializer, err)
			}
			out[k] = b
			continue
		}
		cv, ok := criteria.Canonical(v)
		if !ok {
			return nil, fmt.Errorf("%w: field %q holds a %T, not a scalar", ErrDocument, k, v)
		}
		out[k] = cv
	}
	return out, nil
}

// Decode converts a column value read back from the database. Serialized
// fields are decoded; text read as []byte becomes a string unless the
// column is a BLOB.
func (f Field) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if codec := f.Codec(); codec != nil {
		var data []byte
		switch t := v.(type) {
		case []byte:
			data = t
		case string:
			data = []byte(t)
		default:
			return nil, fmt.Errorf("%w: field %q: cannot decode a %T with %s", ErrDocument, f.Name, v, f.Serializer)
		}
		out, err := codec.Loads(data)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %s: %v", ErrDocument, f.Name, f.Serializer, err)
		}
		return out, nil
	}
	if b, ok := v.([]byte); ok && !f.Blob() {
		return string(b), nil
	}
	return v, nil
}
