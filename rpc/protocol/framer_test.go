package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"
)

func testFrame(id uint32, payload string) *Frame {
	return &Frame{
		Header: TransportHeader{
			Kind:      KindRequest,
			Version:   CurrentVersion,
			RequestID: id,
			Action:    "test:echo",
			Features:  []string{"f1"},
		},
		Payload: []byte(payload),
	}
}

// TestFramerByteByByte feeds two frames one byte at a time
func TestFramerByteByByte(t *testing.T) {
	first, _ := EncodeFrame(testFrame(1, "hello"))
	second, _ := EncodeFrame(testFrame(2, ""))
	stream := append(first, second...)

	framer := NewFramer(DefaultLimits)
	var got []*Frame
	for i, b := range stream {
		framer.Feed([]byte{b})
		frame, err := framer.Next()
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		if frame != nil {
			got = append(got, frame)
			if i != len(first)-1 && i != len(stream)-1 {
				t.Errorf("frame completed at byte %d, expected a frame boundary", i)
			}
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if string(got[0].Payload) != "hello" || got[0].Header.RequestID != 1 {
		t.Errorf("first frame = %+v", got[0])
	}
	if got[1].Payload != nil || got[1].Header.RequestID != 2 {
		t.Errorf("second frame = %+v", got[1])
	}
	if framer.Buffered() != 0 {
		t.Errorf("buffered = %d after all frames, want 0", framer.Buffered())
	}
}

// TestFramerMultipleFramesInOneFeed checks that Next drains everything buffered
func TestFramerMultipleFramesInOneFeed(t *testing.T) {
	var stream []byte
	for i := uint32(1); i <= 5; i++ {
		b, _ := EncodeFrame(testFrame(i, "payload"))
		stream = append(stream, b...)
	}

	framer := NewFramer(DefaultLimits)
	framer.Feed(stream[:len(stream)-3])

	for i := uint32(1); i <= 4; i++ {
		frame, err := framer.Next()
		if err != nil || frame == nil {
			t.Fatalf("frame %d: got %v, %v", i, frame, err)
		}
		if frame.Header.RequestID != i {
			t.Errorf("frame %d has id %d", i, frame.Header.RequestID)
		}
	}

	// last frame is incomplete
	if frame, err := framer.Next(); frame != nil || err != nil {
		t.Fatalf("partial frame returned: %v, %v", frame, err)
	}

	framer.Feed(stream[len(stream)-3:])
	frame, err := framer.Next()
	if err != nil || frame == nil || frame.Header.RequestID != 5 {
		t.Fatalf("last frame: got %v, %v", frame, err)
	}
}

// TestFramerPayloadTooLarge checks rejection as soon as the length is visible
func TestFramerPayloadTooLarge(t *testing.T) {
	limits := Limits{MaxFrameSize: 16, MaxHeaderSize: 1024}

	hdr, _ := EncodeHeader(&testFrame(1, "").Header)
	hdr = binary.BigEndian.AppendUint32(hdr, 17) // no payload bytes follow

	framer := NewFramer(limits)
	framer.Feed(hdr)
	if _, err := framer.Next(); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}

	// sticky
	framer.Feed([]byte("more"))
	if _, err := framer.Next(); !errors.Is(err, ErrTooLarge) {
		t.Errorf("second call got %v, want ErrTooLarge", err)
	}
}

// TestFramerHeaderTooLarge checks the header size bound
func TestFramerHeaderTooLarge(t *testing.T) {
	limits := Limits{MaxFrameSize: 1024, MaxHeaderSize: 32}

	big := testFrame(1, "")
	big.Header.Action = string(bytes.Repeat([]byte("a"), 64))
	b, _ := EncodeFrame(big)

	framer := NewFramer(limits)
	framer.Feed(b[:20]) // the action length is not visible yet
	if frame, err := framer.Next(); frame != nil || err != nil {
		t.Fatalf("got %v, %v before the action length arrived", frame, err)
	}
	framer.Feed(b[20:24])
	if _, err := framer.Next(); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

// TestFramerMalformed checks that garbage is fatal
func TestFramerMalformed(t *testing.T) {
	framer := NewFramer(DefaultLimits)
	framer.Feed([]byte{0xFF, 'E', 0, 1, 0, 0, 0, 1, 0, 0, 0, 0})
	if _, err := framer.Next(); !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
}

// oneByteReader returns at most one byte per Read
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

// TestFrameReader reads frames written with WriteFrame through a slow reader
func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	frames := []*Frame{testFrame(1, "a"), testFrame(2, string(bytes.Repeat([]byte("x"), 3*ReadChunkSize))), testFrame(3, "")}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	for _, slow := range []bool{false, true} {
		var r io.Reader = bytes.NewReader(buf.Bytes())
		if slow {
			r = oneByteReader{r}
		}
		fr := NewFrameReader(r, DefaultLimits)

		for _, want := range frames {
			got, err := fr.ReadFrame()
			if err != nil {
				t.Fatalf("slow=%v: read failed: %v", slow, err)
			}
			if got.Header.RequestID != want.Header.RequestID || !bytes.Equal(got.Payload, want.Payload) {
				t.Errorf("slow=%v: frame %d mismatch", slow, want.Header.RequestID)
			}
			if !reflect.DeepEqual(got.Header, want.Header) {
				t.Errorf("slow=%v: header mismatch %+v", slow, got.Header)
			}
		}
		if _, err := fr.ReadFrame(); err != io.EOF {
			t.Errorf("slow=%v: got %v at end of stream, want io.EOF", slow, err)
		}
	}
}

// TestFrameReaderUnexpectedEOF checks a stream ending inside a frame
func TestFrameReaderUnexpectedEOF(t *testing.T) {
	b, _ := EncodeFrame(testFrame(1, "truncated payload"))
	fr := NewFrameReader(bytes.NewReader(b[:len(b)-4]), DefaultLimits)
	if _, err := fr.ReadFrame(); err != io.ErrUnexpectedEOF {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

// TestFrameReaderRejectsBeforeBuffering ensures an oversized payload is not read
func TestFrameReaderRejectsBeforeBuffering(t *testing.T) {
	limits := Limits{MaxFrameSize: 1024, MaxHeaderSize: 1024}
	f := testFrame(1, string(bytes.Repeat([]byte("x"), 10*ReadChunkSize)))
	b, _ := EncodeFrame(f)

	r := bytes.NewReader(b)
	fr := NewFrameReader(r, limits)
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
	if consumed := len(b) - r.Len(); consumed > ReadChunkSize {
		t.Errorf("consumed %d bytes before rejecting, want at most one chunk", consumed)
	}
}

// countingWriter records the size of every Write call
type countingWriter struct {
	bytes.Buffer
	writes []int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.Buffer.Write(p)
}

// TestWriteFrameWriteCalls checks that an empty payload does not cause an
// extra zero length write
func TestWriteFrameWriteCalls(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		writes  int
	}{
		{"empty payload", "", 1},
		{"with payload", "hello", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &countingWriter{}
			frame := testFrame(7, tt.payload)
			if err := WriteFrame(w, frame); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if len(w.writes) != tt.writes {
				t.Errorf("write calls = %v, want %d", w.writes, tt.writes)
			}
			for _, n := range w.writes {
				if n == 0 {
					t.Errorf("zero length write in %v", w.writes)
				}
			}
			want, _ := EncodeFrame(frame)
			if !bytes.Equal(w.Bytes(), want) {
				t.Errorf("written bytes differ from EncodeFrame")
			}
		})
	}
}

// TestWriteFrameEmptyPayloadOverPipe writes a payload-less frame to a
// synchronous pipe whose peer reads exactly one frame
func TestWriteFrameEmptyPayloadOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	frame := testFrame(3, "")
	written := make(chan error, 1)
	go func() { written <- WriteFrame(a, frame) }()

	got, err := NewFrameReader(b, DefaultLimits).ReadFrame()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Header.RequestID != 3 || got.Payload != nil {
		t.Errorf("frame = %+v", got)
	}

	select {
	case err := <-written:
		if err != nil {
			t.Errorf("WriteFrame failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteFrame still blocked after the peer read the frame")
	}
}

// TestFramerDeclaredPayloadLength checks lengths read off the wire against
// the limits before they are used as sizes
func TestFramerDeclaredPayloadLength(t *testing.T) {
	tests := []struct {
		name     string
		limits   Limits
		declared uint32
		wantErr  error
	}{
		{"above limit", Limits{MaxFrameSize: 1024}, 2048, ErrTooLarge},
		{"sign bit set", Limits{MaxFrameSize: 1024}, 0x80000000, ErrTooLarge},
		{"max u32", Limits{MaxFrameSize: 1024}, 0xFFFFFFFF, ErrTooLarge},
		{"at limit", Limits{MaxFrameSize: 1024}, 1024, nil},
		{"unlimited", Limits{}, 1 << 20, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.limits.checkDeclared(tt.declared); !errors.Is(err, tt.wantErr) {
				t.Errorf("checkDeclared(%d) = %v, want %v", tt.declared, err, tt.wantErr)
			}

			hdr, _ := EncodeHeader(&testFrame(1, "").Header)
			stream := binary.BigEndian.AppendUint32(hdr, tt.declared)
			framer := NewFramer(tt.limits)
			framer.Feed(stream)
			frame, err := framer.Next()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Next() error = %v, want %v", err, tt.wantErr)
			}
			if frame != nil {
				t.Errorf("Next() returned a frame without its payload")
			}
		})
	}
}
