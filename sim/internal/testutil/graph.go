package testutil

import (
	"encoding/binary"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
)

// Provider registers source, sink, indexed_source, collector, relay and
// waker, in that order. Sinks and relays exit on hardware idle when exitOnIdle.
func Provider(t testing.TB, exitOnIdle bool) *sim.Provider {
	t.Helper()
	p, err := sim.NewProvider(
		sim.GraphTypeInfo{ID: GraphTypeID, MaxMessageSize: 8},
		Source{}, Sink{ExitOnIdle: exitOnIdle}, IndexedSource{}, Collector{}, Relay{ExitOnIdle: exitOnIdle}, Waker{},
	)
	require.NoError(t, err)
	return p
}

// U32 encodes v as a 4-byte little-endian payload.
func U32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// Load drives a Builder through begin, fn, end-edges and end-graph, and
// returns the topology.
func Load(t testing.TB, p *sim.Provider, fn func(b sim.GraphLoadEvents)) *sim.Topology {
	t.Helper()
	b := sim.NewBuilder(p)
	require.NoError(t, b.OnBeginGraphInstance(GraphTypeID, "g", nil))
	fn(b)
	require.NoError(t, b.OnEndEdgeInstances())
	require.NoError(t, b.OnEndGraphInstance())
	topo, err := b.Topology()
	require.NoError(t, err)
	return topo
}

// MustDevice adds a device and fails the test on error.
func MustDevice(t testing.TB, b sim.GraphLoadEvents, typeID, id string, properties, state []byte) int {
	t.Helper()
	i, err := b.OnDeviceInstance(typeID, id, properties, state)
	require.NoError(t, err)
	return i
}

// MustEdge adds an edge from port 0 of src to pin 0 of dst.
func MustEdge(t testing.TB, b sim.GraphLoadEvents, dst, src, sendIndex int, properties []byte) {
	t.Helper()
	require.NoError(t, b.OnEdgeInstance(dst, 0, src, 0, sendIndex, properties, nil))
}

// RelayRing builds rings of length relays each, where relay 0 of every
// ring starts with the token and tokens are absorbed after limit hops.
// Device r*length+i is relay i of ring r.
func RelayRing(t testing.TB, p *sim.Provider, rings, length int, limit uint32) *sim.Topology {
	t.Helper()
	return Load(t, p, func(b sim.GraphLoadEvents) {
		for r := 0; r < rings; r++ {
			for i := 0; i < length; i++ {
				state := make([]byte, 12)
				if i == 0 {
					binary.LittleEndian.PutUint32(state, 1)
				}
				MustDevice(t, b, "relay", relayID(r, i), U32(limit), state)
			}
		}
		for r := 0; r < rings; r++ {
			for i := 0; i < length; i++ {
				MustEdge(t, b, r*length+(i+1)%length, r*length+i, -1, nil)
			}
		}
	})
}

func relayID(r, i int) string {
	return "r" + strconv.Itoa(r) + "_" + strconv.Itoa(i)
}

// AssignAll places every device of topo by the given function.
func AssignAll(t testing.TB, topo *sim.Topology, clusters int, of func(d *sim.Device) int) {
	t.Helper()
	parts := make([]int, len(topo.Devices))
	for i, d := range topo.Devices {
		parts[i] = of(d)
	}
	require.NoError(t, topo.ApplyAssignment(parts, clusters))
}
