// Package result implements the pull-based record stream a query produces.
// Records are materialized lazily, one server message at a time, and the
// connection that feeds the stream is handed back to its pool exactly once,
// when the server signals that no more records will arrive.
package result

import (
	"context"
)

// Record is one row of a result stream.
type Record struct {
	Keys   []string
	Values []any
}

// Summary carries the metadata the server attaches to the end of a result
// stream.
type Summary struct {
	Metadata map[string]any
}

// StepResult is what one receive step produced: a record, the terminal
// summary, or neither (a protocol message that carried no records). Summary
// being non-nil means the stream is complete.
type StepResult struct {
	Record  *Record
	Summary *Summary
}

// Source decodes one pending server message per call. The cursor knows
// nothing about how messages are decoded, only that each call makes forward
// progress by at most one message, in server order.
type Source interface {
	ReceiveOne(ctx context.Context) (StepResult, error)
}

// Cursor is a lazy, forward-only, non-restartable view of one result stream.
// It is owned by a single consumer and is not safe for concurrent use.
type Cursor struct {
	source  Source
	queue   []*Record
	summary *Summary
	err     error

	// open is true while more records may still arrive.
	open bool

	release  func()
	released bool
}

// NewCursor creates a cursor over the source. The release callback, if
// non-nil, is invoked exactly once when the server has signalled the end of
// the stream; that is the point at which the owning connection may safely go
// back to its pool.
func NewCursor(source Source, release func()) *Cursor {
	return &Cursor{
		source:  source,
		open:    true,
		release: release,
	}
}

// Next returns the next record, receiving server messages until one is
// available. At the end of the stream it returns (nil, nil), repeatedly.
// Records come out in exactly the order the server produced them.
func (c *Cursor) Next(ctx context.Context) (*Record, error) {
	for {
		if len(c.queue) > 0 {
			rec := c.queue[0]
			c.queue = c.queue[1:]

			return rec, nil
		}

		if c.err != nil {
			return nil, c.err
		}

		if !c.open {
			return nil, nil
		}

		c.step(ctx)
	}
}

// Summary drains whatever remains of the stream, discarding the records, and
// returns the accumulated summary. After partial consumption it only finishes
// draining; it never restarts the stream.
func (c *Cursor) Summary(ctx context.Context) (*Summary, error) {
	for c.open {
		c.step(ctx)
	}

	c.queue = nil

	if c.err != nil {
		return nil, c.err
	}

	return c.summary, nil
}

func (c *Cursor) step(ctx context.Context) {
	st, err := c.source.ReceiveOne(ctx)
	if err != nil {
		c.err = err
		c.open = false

		return
	}

	if st.Record != nil {
		c.queue = append(c.queue, st.Record)
	}

	if st.Summary != nil {
		c.summary = st.Summary
		c.open = false

		c.handoff()
	}
}

func (c *Cursor) handoff() {
	if c.release != nil && !c.released {
		c.released = true
		c.release()
	}
}
