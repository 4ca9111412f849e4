// Package jsonutil wraps github.com/go-json-experiment/json so callers share
// one set of encoding options.
//
// Usage:
//
//	data, err := jsonutil.MarshalIndent(result, "", "  ")
//	err := jsonutil.UnmarshalRead(resp.Body, &check)
package jsonutil

import (
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// UnmarshalRead decodes a single JSON value from r into v.
func UnmarshalRead(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v)
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndentPrefix(prefix), jsontext.WithIndent(indent))
}

// MarshalWrite writes the JSON encoding of v to w.
func MarshalWrite(w io.Writer, v any) error {
	return json.MarshalWrite(w, v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// Encoder writes a stream of JSON values, one per line.
type Encoder struct {
	enc *jsontext.Encoder
}

// NewStreamEncoder returns an Encoder writing to w.
func NewStreamEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: jsontext.NewEncoder(w)}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	return json.MarshalEncode(e.enc, v)
}
