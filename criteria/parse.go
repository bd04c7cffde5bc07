package criteria

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse decodes criteria from JSON text. Empty input (or "null") yields nil
// criteria. Anything other than a JSON object is rejected.
//
// Numbers become int64 when integral and float64 otherwise, so they bind with
// the same affinity as values written through the store.
func Parse(data []byte) (Criteria, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if data[0] != '{' {
		return nil, fmt.Errorf("%w: criteria must be a JSON object", ErrInvalid)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after the criteria object", ErrInvalid)
	}
	return Criteria(NormalizeMap(raw)), nil
}

// ParseString is Parse for string input.
func ParseString(s string) (Criteria, error) {
	return Parse([]byte(strings.TrimSpace(s)))
}

// NormalizeMap converts json.Number values (at any depth) into int64 or
// float64 in place and returns m.
func NormalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = Normalize(v)
	}
	return m
}

// Normalize converts a decoded JSON value for binding.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		return NormalizeMap(t)
	case []any:
		for i := range t {
			t[i] = Normalize(t[i])
		}
		return t
	}
	return v
}
