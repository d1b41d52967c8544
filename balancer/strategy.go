// Package balancer picks a healthy server connection for a requested access
// mode, feeding observed faults back into the topology so failed servers are
// not picked again.
package balancer

import (
	"github.com/arkadb/arka-go/routing"
)

// Strategy selects one address out of a candidate list. An empty candidate
// list yields no address; that is a normal outcome, never an error. The
// strategy is chosen once at driver construction and fixed for its lifetime.
type Strategy interface {
	Pick(mode routing.AccessMode, candidates []routing.Address) (routing.Address, bool)
}

// Occupancy reports how many connections to an address are currently checked
// out. Implemented by pool.Pool.
type Occupancy interface {
	InUse(addr routing.Address) int
}
