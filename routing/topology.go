package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arkadb/arka-go/internal/generic"
)

var (
	// ErrNoRouters is returned when a refresh has exhausted every known
	// router and every seed address without obtaining a routing table. It is
	// fatal to the current acquisition only; later refreshes may succeed.
	ErrNoRouters = errors.New("routing: no routers available")

	// ErrRouterUnreachable wraps a failure to obtain a routing table from one
	// particular router.
	ErrRouterUnreachable = errors.New("routing: router unreachable")
)

// Discoverer obtains a fresh routing table from a single router. It is the
// topology's only link to the wire protocol: how the query is encoded is the
// concern of the protocol layer above this package.
type Discoverer interface {
	QueryRoutingTable(ctx context.Context, router Address) (*Table, error)
}

type Config struct {
	// Seeds are the initially configured addresses. A refresh falls back to
	// them when every router from the current table has failed.
	Seeds []Address

	Discoverer Discoverer

	// QueryRetries is the number of extra attempts (with exponential backoff)
	// given to each router candidate before moving on to the next one.
	QueryRetries uint64

	Logger kitlog.Logger
}

// Topology holds the driver's current routing table and keeps it fresh. The
// table itself is an immutable snapshot behind an atomic reference; refreshes
// and evictions serialize on a mutex so an eviction can never interleave with
// a refresh's wholesale replacement.
type Topology struct {
	mu           sync.Mutex
	table        *generic.Atomic[*Table]
	seeds        []Address
	disc         Discoverer
	queryRetries uint64
	logger       kitlog.Logger
}

func NewTopology(conf Config) *Topology {
	logger := conf.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}

	return &Topology{
		table:        generic.NewAtomic(emptyTable()),
		seeds:        conf.Seeds,
		disc:         conf.Discoverer,
		queryRetries: conf.QueryRetries,
		logger:       logger,
	}
}

// Snapshot returns the current table. The returned value is immutable.
func (t *Topology) Snapshot() *Table {
	return t.table.Load()
}

func (t *Topology) Readers() []Address { return t.table.Load().Readers() }
func (t *Topology) Writers() []Address { return t.table.Load().Writers() }
func (t *Topology) Routers() []Address { return t.table.Load().Routers() }

// EnsureFresh refreshes the routing table if it is stale for the given access
// mode. Concurrent callers that find a fresh table return immediately; at
// most one of them performs the actual refresh.
func (t *Topology) EnsureFresh(ctx context.Context, mode AccessMode) error {
	if !t.table.Load().IsStaleFor(mode, time.Now()) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Another caller may have refreshed while we were waiting for the lock.
	if !t.table.Load().IsStaleFor(mode, time.Now()) {
		return nil
	}

	return t.refresh(ctx)
}

// refresh queries each candidate router in turn until one returns a valid
// table. Routers from the current table are tried first, then the original
// seeds. Must be called with t.mu held.
func (t *Topology) refresh(ctx context.Context) error {
	cur := t.table.Load()
	candidates := dedupe(append(cur.Routers(), t.seeds...))

	level.Debug(t.logger).Log("msg", "refreshing routing table", "candidates", len(candidates))

	for _, router := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := t.queryRouter(ctx, router)
		if err != nil {
			level.Warn(t.logger).Log("msg", "router query failed", "router", router, "err", err)
			continue
		}

		if next.routers.Len() == 0 || next.TTL <= 0 {
			level.Warn(t.logger).Log("msg", "router returned unusable table", "router", router)
			continue
		}

		// The discoverer keeps ownership of the table it handed us, so the
		// published snapshot must be our own copy.
		accepted := next.clone()
		accepted.Version = cur.Version + 1
		t.table.Store(accepted)

		level.Debug(t.logger).Log(
			"msg", "routing table replaced",
			"version", accepted.Version,
			"routers", accepted.routers.Len(),
			"readers", accepted.readers.Len(),
			"writers", accepted.writers.Len(),
		)

		return nil
	}

	return ErrNoRouters
}

func (t *Topology) queryRouter(ctx context.Context, router Address) (*Table, error) {
	var next *Table

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.queryRetries), ctx)

	err := backoff.Retry(func() error {
		var err error
		next, err = t.disc.QueryRoutingTable(ctx, router)

		return err
	}, bo)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRouterUnreachable, router, err)
	}

	return next, nil
}

// Remove drops the address from all three role sets. Called after a
// connection-level fault has made the server untrustworthy in any role.
func (t *Topology) Remove(addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.table.Load()
	next := cur.WithoutAddress(addr)
	next.Version = cur.Version + 1

	t.table.Store(next)
}

// RemoveWriter drops the address from the writer set only. Called after a
// write was refused by a server that has since become a follower; the server
// may still serve reads.
func (t *Topology) RemoveWriter(addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.table.Load()
	next := cur.WithoutWriter(addr)
	next.Version = cur.Version + 1

	t.table.Store(next)
}

// Clear resets the topology to an empty table.
func (t *Topology) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.table.Load()
	next := emptyTable()
	next.Version = cur.Version + 1

	t.table.Store(next)
}

func dedupe(addrs []Address) []Address {
	seen := make(map[Address]struct{}, len(addrs))
	out := make([]Address, 0, len(addrs))

	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}

		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	return out
}
