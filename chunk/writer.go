package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/arkadb/arka-go/internal/generic"
)

// Writer encodes logical messages onto a byte stream in chunked framing.
// Payloads larger than MaxChunkSize are split across several chunks. Like
// Reader, it assumes a single owner.
type Writer struct {
	dst  io.Writer
	head [2]byte
}

func NewWriter(dst io.Writer) (*Writer, error) {
	if dst == nil {
		return nil, errors.New("chunk: destination stream is nil")
	}

	return &Writer{dst: dst}, nil
}

// WriteMessage encodes one logical message, terminator included. An empty
// payload produces a bare terminator, which decodes back into an empty
// message.
func (w *Writer) WriteMessage(payload []byte) error {
	for len(payload) > 0 {
		n := generic.Min(len(payload), MaxChunkSize)

		if err := w.writeChunk(payload[:n]); err != nil {
			return err
		}

		payload = payload[n:]
	}

	return w.writeTerminator()
}

func (w *Writer) writeChunk(p []byte) error {
	binary.BigEndian.PutUint16(w.head[:], uint16(len(p)))

	if _, err := w.dst.Write(w.head[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	if _, err := w.dst.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}

func (w *Writer) writeTerminator() error {
	binary.BigEndian.PutUint16(w.head[:], 0)

	if _, err := w.dst.Write(w.head[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}
