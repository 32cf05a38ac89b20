package rebase

// FixedLengthArray is an append-only ring of bounded capacity. Appending past
// capacity evicts the oldest element first, so the array always holds the
// most recent N values in insertion order.
//
// Not safe for concurrent use; callers hold their own lock.
type FixedLengthArray[T any] struct {
	storage []T
	head    int // index of the oldest element
	length  int
}

// NewFixedLengthArray returns an empty array capped at capacity elements.
// A non-positive capacity is treated as 1.
func NewFixedLengthArray[T any](capacity int) *FixedLengthArray[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &FixedLengthArray[T]{storage: make([]T, capacity)}
}

// Append adds v, evicting the oldest element if the array is full.
func (a *FixedLengthArray[T]) Append(v T) {
	if a.length < len(a.storage) {
		a.storage[(a.head+a.length)%len(a.storage)] = v
		a.length++
		return
	}
	a.storage[a.head] = v
	a.head = (a.head + 1) % len(a.storage)
}

// Len returns the number of stored elements (always <= capacity).
func (a *FixedLengthArray[T]) Len() int {
	return a.length
}

// Values returns the stored elements oldest-first.
func (a *FixedLengthArray[T]) Values() []T {
	out := make([]T, a.length)
	for i := 0; i < a.length; i++ {
		out[i] = a.storage[(a.head+i)%len(a.storage)]
	}
	return out
}
