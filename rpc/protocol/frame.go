package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// Frame is one complete message on the wire: header, u32 payload length and
// the payload bytes.
type Frame struct {
	Header  TransportHeader
	Payload []byte
}

// Limits bounds the size of incoming frames
type Limits struct {
	MaxFrameSize  int // maximum payload size in bytes
	MaxHeaderSize int // maximum encoded header size in bytes
}

// DefaultLimits matches the session defaults
var DefaultLimits = Limits{
	MaxFrameSize:  16 * 1024 * 1024,
	MaxHeaderSize: 64 * 1024,
}

// CheckPayload fails with ErrTooLarge when n exceeds the payload limit
func (l Limits) CheckPayload(n int) error {
	if l.MaxFrameSize > 0 && n > l.MaxFrameSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrTooLarge, n, l.MaxFrameSize)
	}
	return nil
}

// checkDeclared checks a payload length read off the wire before it is
// converted to int, which is 32 bits wide on some platforms
func (l Limits) checkDeclared(n uint32) error {
	if uint64(n) > math.MaxInt {
		return fmt.Errorf("%w: payload of %d bytes exceeds the addressable size", ErrTooLarge, n)
	}
	return l.CheckPayload(int(n))
}

// EncodeFrame returns the complete wire representation of f
func EncodeFrame(f *Frame) ([]byte, error) {
	buf := make([]byte, 0, HeaderSize(&f.Header)+4+len(f.Payload))
	buf, err := AppendHeader(buf, &f.Header)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...), nil
}

// WriteFrame writes a frame to w with the format:
// - N bytes: encoded TransportHeader
// - 4 bytes: payload length (uint32, big endian)
// - M bytes: payload
//
// Header and payload are handed to the writer as one net.Buffers so a
// net.Conn sends them with a single writev. Callers sharing w must serialize
// calls to WriteFrame.
func WriteFrame(w io.Writer, f *Frame) error {
	hdr := make([]byte, 0, HeaderSize(&f.Header)+4)
	hdr, err := AppendHeader(hdr, &f.Header)
	if err != nil {
		return err
	}
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(len(f.Payload)))

	// an empty payload must not turn into a zero length write, which blocks
	// on synchronous conns until the peer reads again
	b := net.Buffers{hdr}
	if len(f.Payload) > 0 {
		b = append(b, f.Payload)
	}
	_, err = b.WriteTo(w)
	return err
}
