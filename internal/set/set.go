package set

// Set is an unordered collection of unique comparable values.
type Set[T comparable] map[T]struct{}

func New[T comparable](vals ...T) Set[T] {
	set := make(Set[T], len(vals))
	for _, val := range vals {
		set.Add(val)
	}

	return set
}

func FromSlice[T comparable](sl []T) Set[T] {
	set := make(Set[T], len(sl))
	for _, val := range sl {
		set.Add(val)
	}

	return set
}

func (s Set[T]) Add(val T) {
	s[val] = struct{}{}
}

// Remove deletes the value from the set. Removing a value that is not present
// is a no-op.
func (s Set[T]) Remove(val T) {
	delete(s, val)
}

func (s Set[T]) Has(val T) bool {
	_, ok := s[val]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}

func (s Set[T]) Values() []T {
	vals := make([]T, 0, len(s))
	for val := range s {
		vals = append(vals, val)
	}

	return vals
}

// Clone returns a shallow copy that can be mutated independently of the
// original set.
func (s Set[T]) Clone() Set[T] {
	newset := make(Set[T], len(s))
	for val := range s {
		newset.Add(val)
	}

	return newset
}
