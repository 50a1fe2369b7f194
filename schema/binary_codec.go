package schema

import (
	"bytes"
	"encoding/gob"
)

// BinaryCodec serializes messages with encoding/gob. A Registry may hold
// many distinct message types, so it reaches for gob's self-describing
// binary encoding rather than a bespoke field-by-field layout tied to one
// fixed struct.
type BinaryCodec struct{}

func (BinaryCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (BinaryCodec) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
