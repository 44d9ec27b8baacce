package serializer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedType is returned when a value cannot be handled by a serializer
var ErrUnsupportedType = errors.New("unsupported type for serializer")

// IRPCSerializer is the interface for all payload serializers
type IRPCSerializer interface {
	// Serialize serializes a value into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize deserializes a byte array into a value
	// It takes a byte array and a pointer to the target value as parameters
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// Name returns the name of the format (e.g., "json", "binary")
	Name() string
}

// ByName returns the serializer for a format name
func ByName(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (must be json, gob or binary)", name)
	}
}
