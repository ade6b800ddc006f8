package transport

import "github.com/poets-sim/poems/sim"

// BundlePool is the per-worker bundle free list used by an Outbox.
type BundlePool = LocalPool[Bundle]

// Outbox holds the pending bundle for each destination cluster of one
// source cluster. It is owned by whichever worker holds the source.
type Outbox struct {
	targets []*Inbox
	pending []*Bundle
	order   []int // destinations with a pending bundle
	pos     []int // index into order, or -1
	pushed  uint64
}

// NewOutbox creates an Outbox delivering to targets, indexed by cluster.
func NewOutbox(targets []*Inbox) *Outbox {
	o := &Outbox{
		targets: targets,
		pending: make([]*Bundle, len(targets)),
		pos:     make([]int, len(targets)),
	}
	for i := range o.pos {
		o.pos[i] = -1
	}
	return o
}

// Send copies msg for edge e into the pending bundle for dest, pushing the
// bundle to dest's inbox once full.
func (o *Outbox) Send(pool *BundlePool, dest int, e *sim.Edge, msg []byte) {
	b := o.pending[dest]
	if b == nil {
		b = pool.Get()
		o.pending[dest] = b
		o.pos[dest] = len(o.order)
		o.order = append(o.order, dest)
	}
	if b.Append(e, msg) {
		o.detach(dest)
		o.push(dest, b)
	}
}

// FlushOne pushes one partially filled bundle. Reports whether anything
// was pending.
func (o *Outbox) FlushOne() bool {
	if len(o.order) == 0 {
		return false
	}
	dest := o.order[len(o.order)-1]
	b := o.pending[dest]
	o.detach(dest)
	o.push(dest, b)
	return true
}

// FlushAll pushes every pending bundle and returns how many were pushed.
func (o *Outbox) FlushAll() int {
	n := 0
	for o.FlushOne() {
		n++
	}
	return n
}

// Pending returns the number of destinations with a pending bundle.
func (o *Outbox) Pending() int { return len(o.order) }

// Pushed returns the number of bundles handed to inboxes so far.
func (o *Outbox) Pushed() uint64 { return o.pushed }

func (o *Outbox) detach(dest int) {
	i := o.pos[dest]
	last := len(o.order) - 1
	moved := o.order[last]
	o.order[i] = moved
	o.pos[moved] = i
	o.order = o.order[:last]
	o.pos[dest] = -1
	o.pending[dest] = nil
}

func (o *Outbox) push(dest int, b *Bundle) {
	o.targets[dest].Push(b)
	o.pushed++
}
