package serializer

import (
	"encoding/json"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonSerializerImpl) Deserialize(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func (j jsonSerializerImpl) Name() string {
	return "json"
}
