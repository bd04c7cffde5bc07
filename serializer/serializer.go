// Package serializer encodes structured values (maps, lists, nested
// documents) into bytes so they can be kept in a single column.
package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/stevemurr/dblite/criteria"
)

// ErrUnknown is returned by Lookup for an unregistered name.
var ErrUnknown = errors.New("unknown serializer")

// Serializer converts a value to bytes and back. Loads(Dumps(v)) must equal v
// once numbers are taken as int64 or float64.
type Serializer interface {
	Dumps(v any) ([]byte, error)
	Loads(data []byte) (any, error)
}

// Registered names.
const (
	NameJSON           = "json"
	NameCompressedJSON = "json.gz"
	NameZstdJSON       = "json.zst"
)

var registry = map[string]Serializer{
	NameJSON:           JSON{},
	NameCompressedJSON: CompressedJSON{Level: gzip.DefaultCompression},
	NameZstdJSON:       ZstdJSON{},
}

// Lookup returns the serializer registered under name.
func Lookup(name string) (Serializer, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknown, name, Names())
	}
	return s, nil
}

// Names lists the registered serializers, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// JSON is plain JSON text.
type JSON struct{}

func (JSON) Dumps(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Loads(data []byte) (any, error) { return decodeJSON(bytes.NewReader(data)) }

// CompressedJSON is JSON compressed with gzip.
type CompressedJSON struct {
	Level int
}

func (c CompressedJSON) Dumps(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (CompressedJSON) Loads(data []byte) (any, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return decodeJSON(zr)
}

// ZstdJSON is JSON compressed with zstd.
type ZstdJSON struct{}

var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

func (ZstdJSON) Dumps(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return zenc.EncodeAll(raw, nil), nil
}

func (ZstdJSON) Loads(data []byte) (any, error) {
	raw, err := zdec.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON(bytes.NewReader(raw))
}

func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return criteria.Normalize(v), nil
}
