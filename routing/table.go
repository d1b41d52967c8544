package routing

import (
	"time"

	"github.com/arkadb/arka-go/internal/set"
)

// Table is one immutable snapshot of the cluster roles. A table is built
// fully off to the side and published with a single atomic swap, so readers
// never observe a half-updated mix of role sets. Mutating methods return a
// new snapshot and leave the receiver untouched.
type Table struct {
	routers set.Set[Address]
	readers set.Set[Address]
	writers set.Set[Address]

	// Version increases by one with every published snapshot, evictions
	// included, so stale in-flight refresh results can be told apart.
	Version uint64

	CreatedAt time.Time
	TTL       time.Duration
}

// NewTable builds a snapshot from the role lists as returned by a router.
// Duplicate addresses within a role collapse into one entry.
func NewTable(routers, readers, writers []Address, ttl time.Duration) *Table {
	return &Table{
		routers:   set.FromSlice(routers),
		readers:   set.FromSlice(readers),
		writers:   set.FromSlice(writers),
		CreatedAt: time.Now(),
		TTL:       ttl,
	}
}

func emptyTable() *Table {
	return &Table{
		routers: set.New[Address](),
		readers: set.New[Address](),
		writers: set.New[Address](),
	}
}

func (t *Table) Routers() []Address { return t.routers.Values() }
func (t *Table) Readers() []Address { return t.readers.Values() }
func (t *Table) Writers() []Address { return t.writers.Values() }

// IsStaleFor reports whether the table can no longer serve the given access
// mode: either its TTL has passed, it knows no routers to refresh from, or
// the role set the mode needs is empty.
func (t *Table) IsStaleFor(mode AccessMode, now time.Time) bool {
	if now.After(t.CreatedAt.Add(t.TTL)) {
		return true
	}

	if t.routers.Len() == 0 {
		return true
	}

	if mode == WriteAccess {
		return t.writers.Len() == 0
	}

	return t.readers.Len() == 0
}

// WithoutAddress returns a snapshot with the address dropped from all three
// role sets. Safe to call for an address that is not present.
func (t *Table) WithoutAddress(addr Address) *Table {
	next := t.clone()
	next.routers.Remove(addr)
	next.readers.Remove(addr)
	next.writers.Remove(addr)

	return next
}

// WithoutWriter returns a snapshot with the address dropped from the writer
// set only; its router and reader roles are kept.
func (t *Table) WithoutWriter(addr Address) *Table {
	next := t.clone()
	next.writers.Remove(addr)

	return next
}

// Servers returns the union of all three role sets.
func (t *Table) Servers() []Address {
	union := t.routers.Clone()

	for _, addr := range t.readers.Values() {
		union.Add(addr)
	}

	for _, addr := range t.writers.Values() {
		union.Add(addr)
	}

	return union.Values()
}

func (t *Table) clone() *Table {
	return &Table{
		routers:   t.routers.Clone(),
		readers:   t.readers.Clone(),
		writers:   t.writers.Clone(),
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		TTL:       t.TTL,
	}
}
