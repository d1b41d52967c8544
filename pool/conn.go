package pool

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/arkadb/arka-go/chunk"
	"github.com/arkadb/arka-go/routing"
)

// Conn is a single protocol connection to one server. A connection has
// exactly one owner while checked out of the pool; none of the methods are
// meant to be called concurrently.
type Conn interface {
	// Addr returns the address of the server this connection talks to.
	Addr() routing.Address

	// Send writes one logical message to the server.
	Send(ctx context.Context, payload []byte) error

	// Receive reads one logical message from the server into buf and returns
	// the number of payload bytes. Messages arrive in the order the server
	// sent them.
	Receive(ctx context.Context, buf *bytes.Buffer) (int, error)

	// Close tears down the connection. Closing twice is safe; only the first
	// call has an effect. A closed connection is never handed out again and
	// is discarded when released.
	Close() error

	IsClosed() bool
}

// netConn is a Conn over a raw stream socket with chunked framing on top.
type netConn struct {
	addr   routing.Address
	raw    net.Conn
	reader *chunk.Reader
	writer *chunk.Writer
	closed uint32
}

func newNetConn(addr routing.Address, raw net.Conn) (*netConn, error) {
	reader, err := chunk.NewReader(raw)
	if err != nil {
		return nil, err
	}

	writer, err := chunk.NewWriter(raw)
	if err != nil {
		return nil, err
	}

	return &netConn{
		addr:   addr,
		raw:    raw,
		reader: reader,
		writer: writer,
	}, nil
}

func (c *netConn) Addr() routing.Address {
	return c.addr
}

func (c *netConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.IsClosed() {
		return fmt.Errorf("pool: send on closed connection to %s", c.addr)
	}

	return c.writer.WriteMessage(payload)
}

func (c *netConn) Receive(ctx context.Context, buf *bytes.Buffer) (int, error) {
	if c.IsClosed() {
		return 0, fmt.Errorf("pool: receive on closed connection to %s", c.addr)
	}

	return c.reader.ReadMessageContext(ctx, buf)
}

func (c *netConn) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return nil // already closed
	}

	return c.raw.Close()
}

func (c *netConn) IsClosed() bool {
	return atomic.LoadUint32(&c.closed) == 1
}
