package balancer

import (
	"sync/atomic"

	"github.com/arkadb/arka-go/routing"
)

// RoundRobin cycles through the candidate list, keeping one cursor per access
// mode so reader and writer selection do not skew each other. The cursor only
// ever moves forward; when the candidate list shrinks, the modulo keeps the
// selection in range.
type RoundRobin struct {
	readIdx  uint64
	writeIdx uint64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (rr *RoundRobin) Pick(mode routing.AccessMode, candidates []routing.Address) (routing.Address, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	n := rr.next(mode)

	return candidates[n%uint64(len(candidates))], true
}

func (rr *RoundRobin) next(mode routing.AccessMode) uint64 {
	idx := &rr.readIdx
	if mode == routing.WriteAccess {
		idx = &rr.writeIdx
	}

	return atomic.AddUint64(idx, 1) - 1
}
