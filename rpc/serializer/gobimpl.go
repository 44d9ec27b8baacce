package serializer

import (
	"bytes"
	"encoding/gob"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, v any) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(v)
}

func (g gobSerializerImpl) Name() string {
	return "gob"
}
