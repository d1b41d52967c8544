package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arkadb/arka-go/internal/generic"
	"github.com/arkadb/arka-go/pool"
	"github.com/arkadb/arka-go/routing"
)

var (
	// ErrNoServer is returned when every known address for the requested
	// access mode has been tried and none yielded a usable connection. The
	// caller may retry the whole operation later.
	ErrNoServer = errors.New("balancer: no server available")

	// ErrDisposed is returned for acquisitions attempted after the driver has
	// begun shutting down.
	ErrDisposed = errors.New("balancer: driver disposed")
)

var (
	acquisitionsTotal = metrics.NewCounter("arka_balancer_acquisitions_total")
	evictionsTotal    = metrics.NewCounter("arka_balancer_evictions_total")
)

type Config struct {
	Topology *routing.Topology
	Pool     *pool.Pool

	// Strategy defaults to round-robin when nil.
	Strategy Strategy

	Logger kitlog.Logger
}

// Balancer hands out working connections per access mode. Every connection it
// returns is wrapped so that a later fault on it automatically evicts the
// server before the fault is re-reported: callers never invoke the error
// feedback path themselves.
type Balancer struct {
	topo     *routing.Topology
	pool     *pool.Pool
	strategy Strategy
	logger   kitlog.Logger

	// synced is the topology version the pool's address set was last
	// reconciled against.
	synced uint64

	disposed    uint32
	disposeOnce sync.Once
}

func New(conf Config) *Balancer {
	logger := conf.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	strategy := conf.Strategy
	if strategy == nil {
		strategy = NewRoundRobin()
	}

	return &Balancer{
		topo:     conf.Topology,
		pool:     conf.Pool,
		strategy: strategy,
		logger:   logger,
	}
}

// Acquire returns a connection to a server capable of the given access mode.
// The disposed flag is checked both before the acquisition starts and after
// it completes, so a disposal landing mid-call is still observed.
func (b *Balancer) Acquire(ctx context.Context, mode routing.AccessMode) (pool.Conn, error) {
	if b.isDisposed() {
		return nil, ErrDisposed
	}

	acquisitionsTotal.Inc()

	if err := b.topo.EnsureFresh(ctx, mode); err != nil {
		return nil, err
	}

	b.syncPool()

	candidates := b.candidatesFor(mode)
	if len(candidates) == 0 {
		level.Warn(b.logger).Log("msg", "no candidates for access mode", "mode", mode)
		return nil, fmt.Errorf("%w: no %s servers known", ErrNoServer, mode)
	}

	remaining := candidates

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if b.isDisposed() {
			return nil, ErrDisposed
		}

		addr, ok := b.strategy.Pick(mode, remaining)
		if !ok {
			break
		}

		conn, err := b.pool.Acquire(ctx, addr)
		if err != nil {
			switch {
			case errors.Is(err, pool.ErrClosed):
				return nil, ErrDisposed
			case errors.Is(err, pool.ErrAddressUnknown):
				// The pool has not caught up with this address yet, or it was
				// purged moments ago. Just try the next candidate.
			case errors.Is(err, pool.ErrUnavailable):
				b.OnConnError(addr, err)
			default:
				return nil, err
			}

			remaining = withoutAddress(remaining, addr)

			continue
		}

		// Re-check after the possibly slow acquisition: a disposal that
		// completed mid-call must win, and the connection goes back to the
		// (now closing) pool instead of the caller.
		if b.isDisposed() {
			b.pool.Release(conn)
			return nil, ErrDisposed
		}

		return &trackedConn{Conn: conn, balancer: b}, nil
	}

	level.Warn(b.logger).Log("msg", "exhausted all candidates", "mode", mode)

	return nil, fmt.Errorf("%w: all %s servers failed", ErrNoServer, mode)
}

// Release hands a connection back to the pool. The usual path is indirect: a
// result cursor calls this through its handoff callback once its stream is
// fully drained.
func (b *Balancer) Release(conn pool.Conn) {
	if tracked, ok := conn.(*trackedConn); ok {
		conn = tracked.Conn
	}

	b.pool.Release(conn)
}

// OnConnError evicts the address from every topology role and purges its
// pooled connections. Called automatically by the connection wrapper; exposed
// for protocol layers that detect faults out of band.
func (b *Balancer) OnConnError(addr routing.Address, cause error) {
	evictionsTotal.Inc()

	level.Info(b.logger).Log("msg", "evicting server", "addr", addr, "err", cause)

	b.topo.Remove(addr)
	b.pool.Purge(addr)
}

// OnWriteError demotes the address from the writer role only, for servers
// that refused a write after becoming followers. The server keeps serving
// reads.
func (b *Balancer) OnWriteError(addr routing.Address) {
	level.Info(b.logger).Log("msg", "demoting writer", "addr", addr)

	b.topo.RemoveWriter(addr)
}

// Close disposes the balancer: the topology is cleared and the pool shut down
// exactly once, no matter how many callers race here. In-flight acquisitions
// either complete before the flag is set or observe it and fail with
// ErrDisposed.
func (b *Balancer) Close() error {
	atomic.StoreUint32(&b.disposed, 1)

	b.disposeOnce.Do(func() {
		b.topo.Clear()
		_ = b.pool.Close()
	})

	return nil
}

func (b *Balancer) isDisposed() bool {
	return atomic.LoadUint32(&b.disposed) == 1
}

func (b *Balancer) candidatesFor(mode routing.AccessMode) []routing.Address {
	if mode == routing.WriteAccess {
		return b.topo.Writers()
	}

	return b.topo.Readers()
}

// syncPool reconciles the pool's address set with the topology whenever the
// table version has moved since the last reconciliation.
func (b *Balancer) syncPool() {
	tab := b.topo.Snapshot()

	if atomic.LoadUint64(&b.synced) == tab.Version {
		return
	}

	b.pool.Update(tab.Servers())
	atomic.StoreUint64(&b.synced, tab.Version)
}

func withoutAddress(addrs []routing.Address, addr routing.Address) []routing.Address {
	return generic.Filter(addrs, func(a routing.Address) bool {
		return a != addr
	})
}
