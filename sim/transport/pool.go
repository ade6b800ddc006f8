package transport

import (
	"sync"
	"sync/atomic"
)

// SharedPool is the overflow free list shared by all workers. Free
// objects beyond max are dropped for the garbage collector.
type SharedPool[T any] struct {
	mu        sync.Mutex
	free      []*T
	max       int
	newFn     func() *T
	allocated atomic.Int64
}

// NewSharedPool creates a SharedPool that allocates with newFn and keeps
// at most max free objects.
func NewSharedPool[T any](max int, newFn func() *T) *SharedPool[T] {
	return &SharedPool[T]{max: max, newFn: newFn}
}

// Allocated returns the number of live objects created by the pool and
// not yet released, whether in use or free.
func (s *SharedPool[T]) Allocated() int64 { return s.allocated.Load() }

// Free returns the number of objects held in the shared free list.
func (s *SharedPool[T]) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.free)
}

func (s *SharedPool[T]) alloc() *T {
	s.allocated.Add(1)
	return s.newFn()
}

// tryTake moves up to n free objects onto dst without blocking. A
// contended lock means the caller allocates instead.
func (s *SharedPool[T]) tryTake(dst []*T, n int) []*T {
	if !s.mu.TryLock() {
		return dst
	}
	k := min(n, len(s.free))
	cut := len(s.free) - k
	dst = append(dst, s.free[cut:]...)
	clear(s.free[cut:])
	s.free = s.free[:cut]
	s.mu.Unlock()
	return dst
}

func (s *SharedPool[T]) give(objs []*T) {
	s.mu.Lock()
	room := max(0, s.max-len(s.free))
	keep := min(room, len(objs))
	s.free = append(s.free, objs[:keep]...)
	s.mu.Unlock()
	if dropped := len(objs) - keep; dropped > 0 {
		s.allocated.Add(-int64(dropped))
	}
}

// LocalPool is a single-goroutine free list in front of a SharedPool.
type LocalPool[T any] struct {
	shared    *SharedPool[T]
	free      []*T
	highWater int
	refill    int
	shed      int
	reset     func(*T)
}

// NewLocalPool creates a LocalPool. reset, if non-nil, is applied to each
// object on Put.
func (s *SharedPool[T]) NewLocalPool(highWater, refill, shed int, reset func(*T)) *LocalPool[T] {
	return &LocalPool[T]{
		shared:    s,
		free:      make([]*T, 0, highWater+1),
		highWater: highWater,
		refill:    refill,
		shed:      shed,
		reset:     reset,
	}
}

// Get returns a free object, refilling from the shared pool or
// allocating when the local list is empty.
func (l *LocalPool[T]) Get() *T {
	if len(l.free) == 0 {
		l.free = l.shared.tryTake(l.free, l.refill)
		if len(l.free) == 0 {
			return l.shared.alloc()
		}
	}
	n := len(l.free) - 1
	x := l.free[n]
	l.free[n] = nil
	l.free = l.free[:n]
	return x
}

// Put returns x to the local list, shedding a batch to the shared pool
// once the local list passes its high-water mark.
func (l *LocalPool[T]) Put(x *T) {
	if l.reset != nil {
		l.reset(x)
	}
	l.free = append(l.free, x)
	if len(l.free) > l.highWater {
		cut := len(l.free) - l.shed
		l.shared.give(l.free[cut:])
		clear(l.free[cut:])
		l.free = l.free[:cut]
	}
}

// Len returns the number of locally held free objects.
func (l *LocalPool[T]) Len() int { return len(l.free) }

// Flush hands every locally held object to the shared pool.
func (l *LocalPool[T]) Flush() {
	if len(l.free) == 0 {
		return
	}
	l.shared.give(l.free)
	clear(l.free)
	l.free = l.free[:0]
}
