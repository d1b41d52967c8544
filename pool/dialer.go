package pool

//go:generate mockgen -destination=mock/pool_mock.go -package=mock github.com/arkadb/arka-go/pool Dialer,Conn

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/arkadb/arka-go/routing"
)

// Dialer opens a new protocol connection to the given address. It is the
// pool's boundary to the concrete transport, so tests and alternative
// transports can substitute their own.
type Dialer interface {
	DialContext(ctx context.Context, addr routing.Address) (Conn, error)
}

// NetDialer opens plain TCP connections with chunked framing. TLS and URI
// resolution live in the layer above; the pool only ever sees host:port
// addresses.
type NetDialer struct {
	// Timeout bounds the connection handshake. Zero means the context alone
	// decides when to give up.
	Timeout time.Duration
}

func (d *NetDialer) DialContext(ctx context.Context, addr routing.Address) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}

	raw, err := nd.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn, err := newNetConn(addr, raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	return conn, nil
}
