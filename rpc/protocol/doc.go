// Package protocol implements the binary wire format spoken between an
// extension and the search engine host.
//
// Every message is a frame consisting of a variable length TransportHeader,
// a 4 byte payload length and the payload itself. All integers are big endian.
//
// Header layout:
//
//	offset  size  field
//	0       1     kind (0x01 request, 0x02 response)
//	1       1     protocol marker 'E'
//	2       1     status (0 success, 1 error)
//	3       1     version
//	4       4     request id
//	8       4+    feature count, each feature as u32 length + bytes
//	...     4+n   action name, requests only
//	...     4+    thread context pair count, key and value as u32 length + bytes
//
// Key Components:
//
//   - TransportHeader, EncodeHeader, DecodeHeader: the header codec. Decoding
//     checks every declared length against the available bytes before it
//     allocates anything.
//
//   - Framer: incremental frame assembly from arbitrarily split input. Frame
//     and header size limits are enforced as soon as a size is visible.
//
//   - FrameReader, WriteFrame: stream adapters used by the connection session.
package protocol
