package transport

import (
	"encoding/binary"
	"fmt"
)

// HandshakeAction is the action of the first request on every connection
const HandshakeAction = "internal:transport/handshake"

// HandshakeInfo is exchanged by both sides while the session is connecting
type HandshakeInfo struct {
	Version  byte
	NodeName string
	Features []string
}

// sizeBytes calculates the size of the encoded info
func (h HandshakeInfo) sizeBytes() int {
	size := 1 + 4 + len(h.NodeName) + 4
	for _, f := range h.Features {
		size += 4 + len(f)
	}
	return size
}

// MarshalBinary encodes the info with the format:
// - 1 byte: version
// - 4 bytes: node name length, followed by the name
// - 4 bytes: feature count, each feature as 4 byte length and bytes
func (h HandshakeInfo) MarshalBinary() ([]byte, error) {
	result := make([]byte, h.sizeBytes())
	result[0] = h.Version
	pos := 1

	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(h.NodeName)))
	pos += 4
	pos += copy(result[pos:], h.NodeName)

	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(h.Features)))
	pos += 4
	for _, f := range h.Features {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(f)))
		pos += 4
		pos += copy(result[pos:], f)
	}
	return result, nil
}

// UnmarshalBinary decodes an info written by MarshalBinary
func (h *HandshakeInfo) UnmarshalBinary(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("handshake info too short: %d bytes", len(data))
	}
	h.Version = data[0]
	pos := 1

	readString := func() (string, error) {
		if len(data)-pos < 4 {
			return "", fmt.Errorf("handshake info truncated at %d", pos)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n < 0 || len(data)-pos < n {
			return "", fmt.Errorf("handshake info truncated at %d", pos)
		}
		s := string(data[pos : pos+n])
		pos += n
		return s, nil
	}

	var err error
	if h.NodeName, err = readString(); err != nil {
		return err
	}

	if len(data)-pos < 4 {
		return fmt.Errorf("handshake info truncated at %d", pos)
	}
	count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if count < 0 || count > (len(data)-pos)/4 {
		return fmt.Errorf("handshake info declares %d features in %d bytes", count, len(data)-pos)
	}

	h.Features = nil
	if count > 0 {
		h.Features = make([]string, count)
		for i := range h.Features {
			if h.Features[i], err = readString(); err != nil {
				return err
			}
		}
	}

	if pos != len(data) {
		return fmt.Errorf("handshake info has %d trailing bytes", len(data)-pos)
	}
	return nil
}
