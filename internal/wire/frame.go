// Package wire implements the length-prefixed framing and the tagged
// binary message encoding used on both the service and manager TCP ports.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds the declared frame length the codec will
// accept before closing the connection. A caller may configure a smaller
// or larger cap via FrameReader.MaxSize.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame declares a length exceeding
// the configured cap. The caller must close the connection on this error.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// FrameReader decodes length-prefixed frames from a stream. It is
// stateful across reads: a partial frame buffers until ReadFrame is able
// to assemble a complete payload.
type FrameReader struct {
	r       *bufio.Reader
	MaxSize uint32
}

// NewFrameReader wraps r with frame decoding. r is wrapped in a
// bufio.Reader, which reuses r itself when it already is a large enough
// *bufio.Reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r), MaxSize: DefaultMaxFrameSize}
}

// ReadFrame blocks until a complete frame's payload is available, or
// returns an error (io.EOF on clean stream end, ErrFrameTooLarge on a
// declared length over the cap, or the underlying read error).
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	max := fr.MaxSize
	if max == 0 {
		max = DefaultMaxFrameSize
	}
	if length > max {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return nil, fmt.Errorf("wire: reading %d byte payload: %w", length, err)
		}
	}
	return payload, nil
}

// WriteFrame writes a length-prefixed frame to w in one call.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
