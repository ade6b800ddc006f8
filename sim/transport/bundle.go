package transport

import "github.com/poets-sim/poems/sim"

// Bundle is a fixed-capacity batch of messages bound for one cluster.
// Payloads are stored inline at a fixed stride.
type Bundle struct {
	next    *Bundle
	n       int
	edges   []*sim.Edge
	sizes   []int32
	payload []byte
	stride  int
}

// NewBundle allocates a Bundle holding up to capacity messages of at most
// stride bytes each.
func NewBundle(capacity, stride int) *Bundle {
	if capacity < 1 {
		panic("transport: bundle capacity must be >= 1")
	}
	return &Bundle{
		edges:   make([]*sim.Edge, capacity),
		sizes:   make([]int32, capacity),
		payload: make([]byte, capacity*stride),
		stride:  stride,
	}
}

// Append copies msg into the bundle and reports whether it is now full.
// Panics if the bundle is already full or msg exceeds the stride.
func (b *Bundle) Append(e *sim.Edge, msg []byte) bool {
	if len(msg) > b.stride {
		panic("transport: message exceeds bundle stride")
	}
	i := b.n
	b.edges[i] = e
	b.sizes[i] = int32(len(msg))
	copy(b.payload[i*b.stride:], msg)
	b.n++
	return b.n == len(b.edges)
}

// At returns the edge and payload of message i. The payload aliases the
// bundle and is valid until Reset.
func (b *Bundle) At(i int) (*sim.Edge, []byte) {
	if i >= b.n {
		panic("transport: bundle index out of range")
	}
	off := i * b.stride
	return b.edges[i], b.payload[off : off+int(b.sizes[i])]
}

// Len returns the number of messages held.
func (b *Bundle) Len() int { return b.n }

// Cap returns the message capacity.
func (b *Bundle) Cap() int { return len(b.edges) }

// Full reports whether no more messages fit.
func (b *Bundle) Full() bool { return b.n == len(b.edges) }

// Next returns the following bundle in a popped chain.
func (b *Bundle) Next() *Bundle { return b.next }

// Bytes returns the bundle's approximate heap footprint.
func (b *Bundle) Bytes() int {
	return len(b.payload) + len(b.sizes)*4 + len(b.edges)*8 + 64
}

// Reset empties the bundle for reuse.
func (b *Bundle) Reset() {
	clear(b.edges[:b.n])
	b.n = 0
	b.next = nil
}
