package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// ReadChunkSize is the size of a single read from the underlying stream
const ReadChunkSize = 32 * 1024

// --------------------------------------------------------------------------
// Framer
// --------------------------------------------------------------------------

// Framer turns a stream of bytes into frames. Bytes are fed in arbitrary
// pieces; Next only ever returns complete frames. Once Next returned an error
// the framer is broken and keeps returning that error.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	limits Limits
	buf    []byte

	// state of the frame currently being assembled
	header     *TransportHeader
	headerLen  int
	payloadLen int

	err error
}

// NewFramer creates a framer enforcing the given limits
func NewFramer(limits Limits) *Framer {
	return &Framer{limits: limits, payloadLen: -1}
}

// Feed appends bytes received from the stream
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of bytes fed but not yet returned as a frame
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next complete frame, or nil without error when more bytes
// are needed.
func (f *Framer) Next() (*Frame, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.header == nil {
		h, n, err := decodeHeader(f.buf, f.limits.MaxHeaderSize)
		if errors.Is(err, ErrTruncated) {
			return nil, nil
		}
		if err != nil {
			f.err = err
			return nil, err
		}
		f.header = &h
		f.headerLen = n
	}

	if f.payloadLen < 0 {
		if len(f.buf) < f.headerLen+4 {
			return nil, nil
		}
		n := binary.BigEndian.Uint32(f.buf[f.headerLen:])
		if err := f.limits.checkDeclared(n); err != nil {
			f.err = err
			return nil, err
		}
		f.payloadLen = int(n)
	}

	total := f.headerLen + 4 + f.payloadLen
	if len(f.buf) < total {
		return nil, nil
	}

	frame := &Frame{Header: *f.header}
	if f.payloadLen > 0 {
		frame.Payload = make([]byte, f.payloadLen)
		copy(frame.Payload, f.buf[f.headerLen+4:total])
	}

	// drop the consumed bytes, keeping whatever belongs to the next frame
	rest := copy(f.buf, f.buf[total:])
	f.buf = f.buf[:rest]
	f.header = nil
	f.headerLen = 0
	f.payloadLen = -1

	return frame, nil
}

// --------------------------------------------------------------------------
// FrameReader
// --------------------------------------------------------------------------

// FrameReader reads frames from an io.Reader. It reads at most ReadChunkSize
// bytes at a time and only reads again once the buffered bytes do not hold a
// complete frame, so memory stays bounded by the frame limits plus one chunk.
type FrameReader struct {
	r       io.Reader
	framer  *Framer
	chunk   []byte
	readErr error
}

// NewFrameReader creates a frame reader for r
func NewFrameReader(r io.Reader, limits Limits) *FrameReader {
	return &FrameReader{
		r:      r,
		framer: NewFramer(limits),
		chunk:  make([]byte, ReadChunkSize),
	}
}

// ReadFrame blocks until a complete frame was read. A stream that ends in the
// middle of a frame yields io.ErrUnexpectedEOF, a clean end yields io.EOF.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	for {
		frame, err := fr.framer.Next()
		if err != nil || frame != nil {
			return frame, err
		}

		if fr.readErr != nil {
			if fr.readErr == io.EOF && fr.framer.Buffered() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fr.readErr
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.framer.Feed(fr.chunk[:n])
		}
		fr.readErr = err
	}
}
