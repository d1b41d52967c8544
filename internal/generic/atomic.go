package generic

import "sync/atomic"

// Atomic is a typed wrapper around atomic.Value. Unlike atomic.Value, the
// zero value is not usable: the holder must be created with NewAtomic so that
// Load never observes a missing value.
type Atomic[T any] struct {
	value atomic.Value
}

func NewAtomic[T any](initial T) *Atomic[T] {
	a := &Atomic[T]{}
	a.value.Store(initial)

	return a
}

// Load returns the most recently stored value.
func (a *Atomic[T]) Load() T {
	return a.value.Load().(T)
}

// Store atomically replaces the held value. Concurrent readers see either the
// previous value or the new one, never a mix of the two.
func (a *Atomic[T]) Store(value T) {
	a.value.Store(value)
}
