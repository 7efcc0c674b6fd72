package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultBufferSize is the largest message a raw read returns.
const DefaultBufferSize = 4096

// MaxFrameSize caps a length-prefixed frame.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned for length prefixes above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Framer reads and writes whole messages on a stream. ReadMessage returns
// io.EOF when the peer is done; an empty message also ends a conversation.
type Framer interface {
	ReadMessage(r io.Reader) (string, error)
	WriteMessage(w io.Writer, msg string) error
}

// NewFramer returns the framer named by framing: "raw" (default) or
// "length".
func NewFramer(framing string, bufferSize int) (Framer, error) {
	switch framing {
	case "", "raw":
		if bufferSize <= 0 {
			bufferSize = DefaultBufferSize
		}
		return RawFramer{BufferSize: bufferSize}, nil
	case "length":
		return LengthFramer{}, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", framing)
	}
}

// RawFramer treats each read of up to BufferSize bytes as one message and
// writes replies unframed. Input is trimmed of surrounding whitespace.
type RawFramer struct {
	BufferSize int
}

func (f RawFramer) ReadMessage(r io.Reader) (string, error) {
	buf := make([]byte, f.BufferSize)
	n, err := r.Read(buf)
	if n > 0 {
		return strings.TrimSpace(string(buf[:n])), nil
	}
	if err == nil {
		err = io.EOF
	}
	return "", err
}

func (f RawFramer) WriteMessage(w io.Writer, msg string) error {
	_, err := io.WriteString(w, msg)
	return err
}

// LengthFramer prefixes every message with its length as a 4-byte
// big-endian integer.
type LengthFramer struct{}

func (LengthFramer) ReadMessage(r io.Reader) (string, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", io.EOF
		}
		return "", err
	}
	if size > MaxFrameSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read frame: %w", err)
	}
	return strings.TrimSpace(string(buf)), nil
}

func (LengthFramer) WriteMessage(w io.Writer, msg string) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	frame := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[4:], msg)
	_, err := w.Write(frame)
	return err
}
