// Package serializer provides payload serialization for the extension
// transport. The transport itself only moves opaque byte payloads; serializers
// turn application values into those bytes and back. They are used by the
// typed helpers in the client and server packages.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Delegates to encoding.BinaryMarshaler and
//     encoding.BinaryUnmarshaler, so types like transport.HandshakeInfo keep
//     their compact hand written format. Byte slices and strings pass through.
//
//   - gobSerializerImpl: Go's gob encoding, convenient when both peers are Go
//     programs.
//
//   - jsonSerializerImpl: JSON encoding, the format the host uses for most
//     extension payloads and the easiest to debug.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewJSONSerializer()
//	data, err := serializer.Serialize(request)
//	// ... send data ...
//	var response MyResponse
//	err = serializer.Deserialize(receivedData, &response)
package serializer
