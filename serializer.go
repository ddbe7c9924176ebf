package cache

import (
	"bytes"
	"encoding/json"
)

// Serializer converts application values to and from their stored form.
// The stored form must be JSON text: relational JSON columns and the
// filesystem envelope embed it as is.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default [Serializer].
type JSONSerializer struct {
	// EscapeHTML escapes <, > and & inside JSON strings.
	EscapeHTML bool
	// UseNumber decodes numbers into json.Number when the target is an
	// interface value.
	UseNumber bool
	// DisallowUnknownFields fails decoding when an object holds a key that
	// does not match a struct field.
	DisallowUnknownFields bool
}

var _ Serializer = JSONSerializer{}

// Marshal implements Serializer.
func (s JSONSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(s.EscapeHTML)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal implements Serializer.
func (s JSONSerializer) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if s.UseNumber {
		dec.UseNumber()
	}
	if s.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}
