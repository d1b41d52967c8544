package balancer

import (
	"github.com/arkadb/arka-go/routing"
)

// LeastConnected picks the candidate with the fewest checked-out connections,
// reading live pool occupancy at selection time. Counts may be slightly stale
// relative to concurrent acquisitions elsewhere; that is accepted rather than
// paying for snapshot isolation. Ties are broken in round-robin order so no
// candidate starves.
type LeastConnected struct {
	rr  RoundRobin
	occ Occupancy
}

func NewLeastConnected(occ Occupancy) *LeastConnected {
	return &LeastConnected{occ: occ}
}

func (lc *LeastConnected) Pick(mode routing.AccessMode, candidates []routing.Address) (routing.Address, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	var (
		start     = lc.rr.next(mode)
		size      = uint64(len(candidates))
		best      = routing.Address("")
		bestCount = -1
	)

	for i := uint64(0); i < size; i++ {
		addr := candidates[(start+i)%size]

		count := lc.occ.InUse(addr)
		if bestCount < 0 || count < bestCount {
			best, bestCount = addr, count
		}
	}

	return best, true
}
