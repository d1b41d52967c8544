package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arkadb/arka-go/routing"
)

func TestRoundRobin_Wraps(t *testing.T) {
	rr := NewRoundRobin()
	candidates := []routing.Address{"a:1", "b:1", "c:1"}

	var picked []routing.Address

	for i := 0; i < 4; i++ {
		addr, ok := rr.Pick(routing.ReadAccess, candidates)
		assert.True(t, ok)

		picked = append(picked, addr)
	}

	assert.Equal(t, []routing.Address{"a:1", "b:1", "c:1", "a:1"}, picked)
}

func TestRoundRobin_EmptyCandidates(t *testing.T) {
	rr := NewRoundRobin()

	for i := 0; i < 3; i++ {
		_, ok := rr.Pick(routing.ReadAccess, nil)
		assert.False(t, ok)
	}
}

func TestRoundRobin_CursorPerMode(t *testing.T) {
	rr := NewRoundRobin()
	candidates := []routing.Address{"a:1", "b:1"}

	read1, _ := rr.Pick(routing.ReadAccess, candidates)
	write1, _ := rr.Pick(routing.WriteAccess, candidates)

	// Each mode starts from its own cursor.
	assert.Equal(t, routing.Address("a:1"), read1)
	assert.Equal(t, routing.Address("a:1"), write1)

	read2, _ := rr.Pick(routing.ReadAccess, candidates)
	assert.Equal(t, routing.Address("b:1"), read2)
}

func TestRoundRobin_ShrinkingCandidates(t *testing.T) {
	rr := NewRoundRobin()

	for i := 0; i < 5; i++ {
		_, ok := rr.Pick(routing.ReadAccess, []routing.Address{"a:1", "b:1", "c:1"})
		assert.True(t, ok)
	}

	// The cursor is far ahead of the shrunk list; selection must stay in range.
	addr, ok := rr.Pick(routing.ReadAccess, []routing.Address{"a:1"})
	assert.True(t, ok)
	assert.Equal(t, routing.Address("a:1"), addr)
}

type occupancyMap map[routing.Address]int

func (m occupancyMap) InUse(addr routing.Address) int {
	return m[addr]
}

func TestLeastConnected_PicksLeastBusy(t *testing.T) {
	lc := NewLeastConnected(occupancyMap{"a:1": 2, "b:1": 0, "c:1": 1})

	addr, ok := lc.Pick(routing.ReadAccess, []routing.Address{"a:1", "b:1", "c:1"})
	assert.True(t, ok)
	assert.Equal(t, routing.Address("b:1"), addr)
}

func TestLeastConnected_TiesRotate(t *testing.T) {
	lc := NewLeastConnected(occupancyMap{})
	candidates := []routing.Address{"a:1", "b:1", "c:1"}

	var picked []routing.Address

	for i := 0; i < 3; i++ {
		addr, ok := lc.Pick(routing.ReadAccess, candidates)
		assert.True(t, ok)

		picked = append(picked, addr)
	}

	// With equal occupancy everywhere, selection degrades to round-robin so
	// no candidate starves.
	assert.Equal(t, []routing.Address{"a:1", "b:1", "c:1"}, picked)
}

func TestLeastConnected_EmptyCandidates(t *testing.T) {
	lc := NewLeastConnected(occupancyMap{})

	_, ok := lc.Pick(routing.WriteAccess, nil)
	assert.False(t, ok)
}
