// Package chunk implements the length-delimited message framing used by the
// Arka wire protocol. A logical message is transferred as a sequence of
// chunks, each prefixed with a 2-byte big-endian length, and is ended by a
// zero-length terminator:
//
//	message    = chunk* terminator
//	chunk      = u16 length (1-65535) | length payload bytes
//	terminator = 0x0000
//
// Payloads larger than MaxChunkSize are split across several chunks by the
// writer; chunk boundaries carry no meaning and are not preserved across a
// decode/encode round trip.
package chunk

import (
	"errors"
	"math"
)

// MaxChunkSize is the largest payload a single chunk can carry.
const MaxChunkSize = math.MaxUint16

var (
	// ErrReadFailed is returned when the underlying stream reports a read
	// fault while a message is being decoded.
	ErrReadFailed = errors.New("chunk: stream read failed")

	// ErrTruncated is returned when the underlying stream ends in the middle
	// of a chunk header or chunk payload.
	ErrTruncated = errors.New("chunk: message truncated")

	// ErrWriteFailed is returned when the underlying stream reports a write
	// fault while a message is being encoded.
	ErrWriteFailed = errors.New("chunk: stream write failed")
)
