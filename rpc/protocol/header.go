package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// --------------------------------------------------------------------------
// Header Types
// --------------------------------------------------------------------------

// MessageKind distinguishes requests from responses (byte 0 of every header)
type MessageKind byte

const (
	KindRequest  MessageKind = 0x01
	KindResponse MessageKind = 0x02
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// Status is the outcome flag of a response. Requests always carry success.
type Status byte

const (
	StatusSuccess Status = 0
	StatusError   Status = 1
)

const (
	// ProtocolMarker identifies the transport protocol (byte 1 of every header)
	ProtocolMarker byte = 'E'

	// CurrentVersion is the wire version written by this implementation
	CurrentVersion byte = 1

	// FixedHeaderSize is the size of kind, marker, status, version and id
	FixedHeaderSize = 8
)

// TransportHeader is the decoded form of a message header.
//
// Action is set on requests and empty on responses. Empty feature lists and
// thread contexts are represented as nil so that decoding an encoded header
// yields a value equal to the original.
type TransportHeader struct {
	Kind          MessageKind
	Status        Status
	Version       byte
	RequestID     uint32
	Action        string
	Features      []string
	ThreadContext map[string]string
}

// IsRequest reports whether the header belongs to a request
func (h *TransportHeader) IsRequest() bool { return h.Kind == KindRequest }

// IsError reports whether the header belongs to an error response
func (h *TransportHeader) IsError() bool { return h.Kind == KindResponse && h.Status == StatusError }

// Validate checks the invariants every encodable header must satisfy
func (h *TransportHeader) Validate() error {
	switch h.Kind {
	case KindRequest:
		if h.Action == "" {
			return fmt.Errorf("%w: request without action", ErrMalformed)
		}
		if h.Status != StatusSuccess {
			return fmt.Errorf("%w: request with error status", ErrMalformed)
		}
	case KindResponse:
		if h.Action != "" {
			return fmt.Errorf("%w: response with action %q", ErrMalformed, h.Action)
		}
		if h.Status != StatusSuccess && h.Status != StatusError {
			return fmt.Errorf("%w: unknown status %d", ErrMalformed, h.Status)
		}
	default:
		return fmt.Errorf("%w: unknown message kind 0x%02x", ErrMalformed, byte(h.Kind))
	}
	return nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// HeaderSize returns the number of bytes the encoded header occupies
func HeaderSize(h *TransportHeader) int {
	size := FixedHeaderSize + 4
	for _, f := range h.Features {
		size += 4 + len(f)
	}
	if h.Kind == KindRequest {
		size += 4 + len(h.Action)
	}
	size += 4
	for k, v := range h.ThreadContext {
		size += 8 + len(k) + len(v)
	}
	return size
}

// EncodeHeader encodes the header into a new byte slice
func EncodeHeader(h *TransportHeader) ([]byte, error) {
	return AppendHeader(make([]byte, 0, HeaderSize(h)), h)
}

// AppendHeader appends the encoded header to dst. Thread context entries are
// written ordered by key so the encoding is deterministic.
func AppendHeader(dst []byte, h *TransportHeader) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return dst, err
	}

	dst = append(dst, byte(h.Kind), ProtocolMarker, byte(h.Status), h.Version)
	dst = binary.BigEndian.AppendUint32(dst, h.RequestID)

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(h.Features)))
	for _, f := range h.Features {
		dst = appendString(dst, f)
	}

	if h.Kind == KindRequest {
		dst = appendString(dst, h.Action)
	}

	keys := make([]string, 0, len(h.ThreadContext))
	for k := range h.ThreadContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(keys)))
	for _, k := range keys {
		dst = appendString(dst, k)
		dst = appendString(dst, h.ThreadContext[k])
	}
	return dst, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// DecodeHeader decodes a header from the start of b and returns it together
// with the number of bytes consumed. Declared lengths are checked against the
// available bytes before anything is allocated.
func DecodeHeader(b []byte) (TransportHeader, int, error) {
	return decodeHeader(b, 0)
}

// headerDecoder walks a byte slice. limit, when positive, is the maximum
// encoded header size; a declaration reaching past it fails with ErrTooLarge
// even if the bytes have not arrived yet.
type headerDecoder struct {
	b     []byte
	pos   int
	limit int
}

// need checks that n more bytes are available
func (d *headerDecoder) need(n uint64) error {
	end := uint64(d.pos) + n
	if d.limit > 0 && end > uint64(d.limit) {
		return fmt.Errorf("%w: header exceeds %d bytes", ErrTooLarge, d.limit)
	}
	if end > uint64(len(d.b)) {
		return ErrTruncated
	}
	return nil
}

func (d *headerDecoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.b[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *headerDecoder) readString() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	// need bounds n by len(d.b), so it fits an int from here on
	if err := d.need(uint64(n)); err != nil {
		return "", err
	}
	end := d.pos + int(n)
	s := string(d.b[d.pos:end])
	d.pos = end
	return s, nil
}

// count reads a list length and checks that every element, at minSize bytes
// each, could still fit
func (d *headerDecoder) count(minSize uint64) (int, error) {
	n, err := d.readU32()
	if err != nil {
		return 0, err
	}
	if err := d.need(uint64(n) * minSize); err != nil {
		return 0, err
	}
	return int(n), nil
}

func decodeHeader(b []byte, limit int) (TransportHeader, int, error) {
	var h TransportHeader
	d := &headerDecoder{b: b, limit: limit}

	if err := d.need(FixedHeaderSize); err != nil {
		return h, 0, err
	}

	h.Kind = MessageKind(b[0])
	if h.Kind != KindRequest && h.Kind != KindResponse {
		return h, 0, fmt.Errorf("%w: unknown message kind 0x%02x", ErrMalformed, b[0])
	}
	if b[1] != ProtocolMarker {
		return h, 0, fmt.Errorf("%w: unknown protocol marker 0x%02x", ErrMalformed, b[1])
	}
	h.Status = Status(b[2])
	if h.Status != StatusSuccess && h.Status != StatusError {
		return h, 0, fmt.Errorf("%w: unknown status 0x%02x", ErrMalformed, b[2])
	}
	h.Version = b[3]
	h.RequestID = binary.BigEndian.Uint32(b[4:8])
	d.pos = FixedHeaderSize

	// features
	n, err := d.count(4)
	if err != nil {
		return h, 0, err
	}
	if n > 0 {
		h.Features = make([]string, n)
		for i := range h.Features {
			if h.Features[i], err = d.readString(); err != nil {
				return h, 0, err
			}
		}
	}

	// action (requests only)
	if h.Kind == KindRequest {
		if h.Action, err = d.readString(); err != nil {
			return h, 0, err
		}
	}

	// thread context
	if n, err = d.count(8); err != nil {
		return h, 0, err
	}
	if n > 0 {
		h.ThreadContext = make(map[string]string, n)
		for i := 0; i < n; i++ {
			k, err := d.readString()
			if err != nil {
				return h, 0, err
			}
			v, err := d.readString()
			if err != nil {
				return h, 0, err
			}
			if _, dup := h.ThreadContext[k]; dup {
				return h, 0, fmt.Errorf("%w: duplicate thread context key %q", ErrMalformed, k)
			}
			h.ThreadContext[k] = v
		}
	}

	if err := h.Validate(); err != nil {
		return h, 0, err
	}
	return h, d.pos, nil
}
