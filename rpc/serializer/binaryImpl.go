package serializer

import (
	"encoding"
	"fmt"
)

// NewBinarySerializer creates a new serializer for types that bring their own
// compact binary encoding (encoding.BinaryMarshaler and BinaryUnmarshaler).
// Raw byte slices and strings are passed through unchanged.
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer by delegating to the value
type binarySerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case encoding.BinaryMarshaler:
		return val.MarshalBinary()
	default:
		return nil, fmt.Errorf("%w: binary cannot encode %T", ErrUnsupportedType, v)
	}
}

func (b binarySerializerImpl) Deserialize(data []byte, v any) error {
	switch val := v.(type) {
	case *[]byte:
		*val = append((*val)[:0], data...)
		return nil
	case *string:
		*val = string(data)
		return nil
	case encoding.BinaryUnmarshaler:
		return val.UnmarshalBinary(data)
	default:
		return fmt.Errorf("%w: binary cannot decode into %T", ErrUnsupportedType, v)
	}
}

func (b binarySerializerImpl) Name() string {
	return "binary"
}
