package history

// ring is a fixed-capacity buffer used as a stack: pushes go to the newest
// end and pops come from the newest end. When full, a push overwrites the
// oldest element.
type ring[T any] struct {
	data  []T
	head  int // next write position
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = DefaultMaxDepth
	}
	return &ring[T]{data: make([]T, capacity)}
}

// push appends item and reports whether the oldest element was evicted.
func (r *ring[T]) push(item T) bool {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count == len(r.data) {
		return true
	}
	r.count++
	return false
}

func (r *ring[T]) newestIndex() int {
	idx := r.head - 1
	if idx < 0 {
		idx = len(r.data) - 1
	}
	return idx
}

func (r *ring[T]) pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.newestIndex()
	item := r.data[idx]
	r.data[idx] = zero
	r.head = idx
	r.count--
	return item, true
}

func (r *ring[T]) peek() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[r.newestIndex()], true
}

// slice returns the elements oldest first.
func (r *ring[T]) slice() []T {
	out := make([]T, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(start+i)%len(r.data)])
	}
	return out
}

func (r *ring[T]) len() int { return r.count }

func (r *ring[T]) clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.count = 0
}
