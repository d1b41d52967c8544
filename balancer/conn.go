package balancer

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"

	"github.com/arkadb/arka-go/pool"
)

// trackedConn decorates a pooled connection with fault capture: any I/O error
// it observes triggers the balancer's error feedback exactly once before the
// error is re-reported to the caller. Any concrete transport connection can be
// wrapped this way; there is no coupling to the connection's implementation.
type trackedConn struct {
	pool.Conn

	balancer *Balancer
	reported uint32
}

func (c *trackedConn) Send(ctx context.Context, payload []byte) error {
	err := c.Conn.Send(ctx, payload)
	if err != nil {
		c.fault(err)
	}

	return err
}

func (c *trackedConn) Receive(ctx context.Context, buf *bytes.Buffer) (int, error) {
	n, err := c.Conn.Receive(ctx, buf)
	if err != nil {
		c.fault(err)
	}

	return n, err
}

func (c *trackedConn) fault(cause error) {
	// Cancellation says nothing about the server's health.
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return
	}

	if !atomic.CompareAndSwapUint32(&c.reported, 0, 1) {
		return
	}

	_ = c.Conn.Close()
	c.balancer.OnConnError(c.Conn.Addr(), cause)
}
