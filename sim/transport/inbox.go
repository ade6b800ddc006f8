package transport

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Inbox is the inbound endpoint of one cluster: a lock-free stack that
// many producers push onto and one consumer drains at once. The head is
// isolated on its own cache line.
type Inbox struct {
	_    cpu.CacheLinePad
	head atomic.Pointer[Bundle]
	_    cpu.CacheLinePad
}

// Push prepends b. Safe to call from any goroutine.
func (q *Inbox) Push(b *Bundle) {
	for {
		old := q.head.Load()
		b.next = old
		if q.head.CompareAndSwap(old, b) {
			return
		}
	}
}

// PopAll detaches every queued bundle and returns them oldest first,
// chained through Next. Returns nil when empty. Only the owning consumer
// may call PopAll.
func (q *Inbox) PopAll() *Bundle {
	// Plain load first: most polls find nothing, and a load does not
	// take the cache line exclusive.
	if q.head.Load() == nil {
		return nil
	}
	var prev *Bundle
	for b := q.head.Swap(nil); b != nil; {
		next := b.next
		b.next = prev
		prev = b
		b = next
	}
	return prev
}

// Empty reports whether nothing is queued. The answer may be stale by the
// time it returns.
func (q *Inbox) Empty() bool { return q.head.Load() == nil }
