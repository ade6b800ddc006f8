package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/internal/testutil"
)

// testConfig returns the default config with the given thread count and
// a quick watchdog.
func testConfig(threads int) sim.EngineConfig {
	cfg := sim.DefaultEngineConfig()
	cfg.Threads = threads
	cfg.CheckOwnership = true
	cfg.Idle.MaxUnproductiveIdles = 2
	return cfg
}

// sourceToSink builds one source sending count messages to one sink. With
// split the two are placed in different clusters.
func sourceToSink(t *testing.T, p *sim.Provider, count uint32, split bool) *sim.Topology {
	t.Helper()
	topo := testutil.Load(t, p, func(b sim.GraphLoadEvents) {
		src := testutil.MustDevice(t, b, "source", "src", testutil.U32(count), nil)
		dst := testutil.MustDevice(t, b, "sink", "dst", nil, nil)
		testutil.MustEdge(t, b, dst, src, -1, nil)
	})
	if split {
		testutil.AssignAll(t, topo, 2, func(d *sim.Device) int { return d.Index })
	} else {
		testutil.AssignAll(t, topo, 1, func(*sim.Device) int { return 0 })
	}
	return topo
}

func mustEngine(t *testing.T, topo *sim.Topology, cfg sim.EngineConfig) *Engine {
	t.Helper()
	e, err := NewEngine(topo, cfg)
	require.NoError(t, err)
	return e
}
