package chunk

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader reassembles logical messages from a chunked byte stream. It is not
// safe for concurrent use: a connection has a single owner while checked out,
// and that owner drives the reader.
type Reader struct {
	src  io.Reader
	head [2]byte
}

// NewReader creates a reader over the given stream. The stream must be
// non-nil; this is verified here so that a misconfigured connection fails
// before the first read is attempted.
func NewReader(src io.Reader) (*Reader, error) {
	if src == nil {
		return nil, errors.New("chunk: source stream is nil")
	}

	return &Reader{src: src}, nil
}

// ReadMessage decodes exactly one logical message from the stream, appending
// its payload to buf. It returns the number of payload bytes written. A clean
// end of stream before the first header byte is reported as io.EOF; end of
// stream anywhere inside a message is reported as ErrTruncated.
func (r *Reader) ReadMessage(buf *bytes.Buffer) (int, error) {
	return r.readMessage(nil, buf)
}

// ReadMessageContext is the context-aware form of ReadMessage. Cancellation
// is observed at chunk boundaries: once a chunk read has started, it runs to
// completion before the context is consulted again.
func (r *Reader) ReadMessageContext(ctx context.Context, buf *bytes.Buffer) (int, error) {
	return r.readMessage(ctx, buf)
}

func (r *Reader) readMessage(ctx context.Context, buf *bytes.Buffer) (int, error) {
	var total int

	for {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return total, err
			}
		}

		n, err := io.ReadFull(r.src, r.head[:])
		if err != nil {
			// A clean EOF on a message boundary means the stream is over.
			if total == 0 && n == 0 && errors.Is(err, io.EOF) {
				return 0, io.EOF
			}

			return total, classifyReadError(err)
		}

		size := binary.BigEndian.Uint16(r.head[:])
		if size == 0 {
			return total, nil
		}

		m, err := io.CopyN(buf, r.src, int64(size))
		total += int(m)

		if err != nil {
			return total, classifyReadError(err)
		}
	}
}

// classifyReadError separates running out of bytes (truncation) from the
// stream actively failing (read fault). io.CopyN reports a short copy as
// io.EOF, io.ReadFull as io.ErrUnexpectedEOF; both mean the peer stopped
// mid-message.
func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	return fmt.Errorf("%w: %w", ErrReadFailed, err)
}
