// Package pool maintains reusable protocol connections keyed by server
// address. Connections are checked out by the load balancer, used by exactly
// one caller at a time, and handed back once the caller's result stream is
// drained.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arkadb/arka-go/internal/set"
	"github.com/arkadb/arka-go/routing"
)

var (
	// ErrUnavailable is returned when a new connection to a specific address
	// could not be opened. The caller is expected to retry against another
	// address rather than give up.
	ErrUnavailable = errors.New("pool: connection unavailable")

	// ErrAddressUnknown is returned when the address has not been registered
	// with the pool. Distinct from a connection failure: the balancer's retry
	// loop skips such addresses without evicting anything.
	ErrAddressUnknown = errors.New("pool: address unknown")

	// ErrClosed is returned for acquisitions attempted after Close.
	ErrClosed = errors.New("pool: closed")
)

var (
	dialsTotal      = metrics.NewCounter("arka_pool_dials_total")
	dialErrorsTotal = metrics.NewCounter("arka_pool_dial_errors_total")
	purgesTotal     = metrics.NewCounter("arka_pool_purges_total")
)

type Config struct {
	Dialer Dialer
	Logger kitlog.Logger
}

// server is the pool's per-address state. The idle list and the in-use count
// are guarded by the server's own mutex, so traffic to different addresses
// never contends on a shared lock.
type server struct {
	mu      sync.Mutex
	idle    []Conn
	inUse   int
	removed bool
}

// Pool owns the idle connections for every known server address.
type Pool struct {
	servers *xsync.MapOf[routing.Address, *server]
	dialer  Dialer
	logger  kitlog.Logger
	closed  uint32
}

func New(conf Config) *Pool {
	logger := conf.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	return &Pool{
		servers: xsync.NewMapOf[routing.Address, *server](),
		dialer:  conf.Dialer,
		logger:  logger,
	}
}

// Add registers addresses with the pool. Registration creates an empty idle
// set; no connections are opened until the address is first acquired.
func (p *Pool) Add(addrs ...routing.Address) {
	for _, addr := range addrs {
		p.servers.LoadOrStore(addr, &server{})
	}
}

// Update reconciles the pool's known address set with a new topology:
// addresses no longer present are purged, newly present ones get empty pools.
func (p *Pool) Update(addrs []routing.Address) {
	keep := set.FromSlice(addrs)

	p.Add(addrs...)

	p.servers.Range(func(addr routing.Address, _ *server) bool {
		if !keep.Has(addr) {
			p.Purge(addr)
		}

		return true
	})
}

// Acquire returns an idle connection for the address, opening a new one when
// none is idle. The caller owns the connection until it is passed back to
// Release.
func (p *Pool) Acquire(ctx context.Context, addr routing.Address) (Conn, error) {
	if atomic.LoadUint32(&p.closed) == 1 {
		return nil, ErrClosed
	}

	srv, ok := p.servers.Load(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressUnknown, addr)
	}

	srv.mu.Lock()

	for len(srv.idle) > 0 {
		conn := srv.idle[len(srv.idle)-1]
		srv.idle = srv.idle[:len(srv.idle)-1]

		// Idle connections may have been closed behind our back.
		if conn.IsClosed() {
			continue
		}

		srv.inUse++
		srv.mu.Unlock()

		return conn, nil
	}

	// Reserve the slot before the slow dial so that concurrent least-connected
	// selections already see this address as busier.
	srv.inUse++
	srv.mu.Unlock()

	dialsTotal.Inc()

	conn, err := p.dialer.DialContext(ctx, addr)
	if err != nil {
		dialErrorsTotal.Inc()

		srv.mu.Lock()
		srv.inUse--
		srv.mu.Unlock()

		level.Warn(p.logger).Log("msg", "failed to open connection", "addr", addr, "err", err)

		// The caller giving up mid-dial says nothing about the server's
		// health; report it as cancellation, not as the server being down.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, addr, err)
	}

	return conn, nil
}

// Release hands a connection back to the pool. Broken connections, and
// connections whose address has been purged in the meantime, are closed
// instead of being returned to the idle set.
func (p *Pool) Release(conn Conn) {
	srv, ok := p.servers.Load(conn.Addr())
	if !ok {
		_ = conn.Close()
		return
	}

	srv.mu.Lock()

	if srv.inUse > 0 {
		srv.inUse--
	}

	if srv.removed || conn.IsClosed() || atomic.LoadUint32(&p.closed) == 1 {
		srv.mu.Unlock()
		_ = conn.Close()

		return
	}

	srv.idle = append(srv.idle, conn)
	srv.mu.Unlock()
}

// Purge closes and drops all connections for the address and forgets the
// address entirely. Connections currently checked out are closed lazily when
// released. Idempotent.
func (p *Pool) Purge(addr routing.Address) {
	srv, ok := p.servers.LoadAndDelete(addr)
	if !ok {
		return
	}

	srv.mu.Lock()
	idle := srv.idle
	srv.idle = nil
	srv.removed = true
	srv.mu.Unlock()

	for _, conn := range idle {
		_ = conn.Close()
	}

	purgesTotal.Inc()

	level.Debug(p.logger).Log("msg", "address purged from pool", "addr", addr, "closed", len(idle))
}

// InUse returns the number of connections to the address currently checked
// out. The least-connected strategy reads this live, with no snapshot
// isolation from concurrent acquisitions.
func (p *Pool) InUse(addr routing.Address) int {
	srv, ok := p.servers.Load(addr)
	if !ok {
		return 0
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.inUse
}

// Close purges every address and rejects all further acquisitions. Only the
// first call has an effect.
func (p *Pool) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil // already closed
	}

	p.servers.Range(func(addr routing.Address, _ *server) bool {
		p.Purge(addr)
		return true
	})

	return nil
}
