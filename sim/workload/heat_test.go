package workload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/cluster"
)

func heatSpec(n int, maxT uint32) *WorkloadSpec {
	return &WorkloadSpec{Kind: KindHeat, Seed: 7, Heat: &HeatSpec{Size: n, MaxTime: maxT, InitialMax: 1}}
}

func TestGenerateHeat_GridShape(t *testing.T) {
	// GIVEN a 4x4 heat spec
	topo, err := Build(heatSpec(4, 3))
	require.NoError(t, err)

	// THEN there is one cell per grid point and one edge per neighbour
	assert.Len(t, topo.Devices, 16)
	assert.Equal(t, 48, topo.EdgeCount())
	corner, side, inner := topo.Devices[0], topo.Devices[1], topo.Devices[5]
	assert.Equal(t, "c_0_0", corner.ID)
	assert.Equal(t, uint32(2), corner.View.Properties().Uint32(cellPropDegree))
	assert.Equal(t, uint32(3), side.View.Properties().Uint32(cellPropDegree))
	assert.Equal(t, uint32(4), inner.View.Properties().Uint32(cellPropDegree))
	// Edges into the corner carry 0.75/2.
	assert.InDelta(t, 0.375, topo.Devices[1].Outputs[0].Edges[0].View.Properties().Float32(0), 1e-6)
}

func TestGenerateHeat_SameSeedSameValues(t *testing.T) {
	a, err := Build(heatSpec(5, 1))
	require.NoError(t, err)
	b, err := Build(heatSpec(5, 1))
	require.NoError(t, err)

	for i := range a.Devices {
		assert.Equal(t, CellValue(a.Devices[i]), CellValue(b.Devices[i]))
	}
}

func TestCell_RecvForCurrentAndNextStep(t *testing.T) {
	// GIVEN a degree-2 cell at t=0 that has heard from no neighbours
	env := sim.NewEnv(u32(5))
	dev := sim.NewView(make([]byte, 16+28), cellInfo.PropertiesSize)
	dev.Properties().PutFloat32(cellPropWSelf, 0.25)
	dev.Properties().PutUint32(cellPropDegree, 2)
	dev.State().PutFloat32(cellV, 4)
	Cell{}.Init(env, dev)
	// Init counts the cell's own value as a full neighbourhood for t=0.
	require.Equal(t, uint32(1), dev.State().Uint32(cellRTS))
	msg := make([]byte, heatMessageSize)
	res := Cell{}.TrySendOrCompute(env, dev, msg)
	require.Equal(t, 0, res.OutputPort)
	assert.False(t, res.Active)
	assert.Equal(t, uint32(1), sim.Bytes(msg).Uint32(0))
	assert.Equal(t, float32(1), sim.Bytes(msg).Float32(4))

	edge := sim.NewView(make([]byte, 8), 4)
	edge.Properties().PutFloat32(0, 0.5)
	in := sim.Bytes(make([]byte, heatMessageSize))

	// WHEN a t=2 message arrives early
	in.PutUint32(0, 2)
	in.PutFloat32(4, 2)
	active := Cell{}.Recv(env, 0, dev, edge, in)

	// THEN it is held for the next step
	assert.False(t, active)
	assert.Equal(t, uint32(1), dev.State().Uint32(cellNS))
	assert.Equal(t, float32(1), dev.State().Float32(cellNA))

	// WHEN both t=1 messages arrive
	in.PutUint32(0, 1)
	assert.False(t, Cell{}.Recv(env, 0, dev, edge, in))
	assert.True(t, Cell{}.Recv(env, 0, dev, edge, in))

	// THEN the cell is ready to send t=2
	rts, _, ok := Cell{}.CalcReadyToSend(env, dev)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), rts)
}

func TestCell_RecvFromThePast_Panics(t *testing.T) {
	env := sim.NewEnv(u32(5))
	dev := sim.NewView(make([]byte, 16+28), cellInfo.PropertiesSize)
	dev.State().PutUint32(cellT, 3)
	edge := sim.NewView(make([]byte, 8), 4)
	in := sim.Bytes(make([]byte, heatMessageSize))
	in.PutUint32(0, 1)

	assert.Panics(t, func() { Cell{}.Recv(env, 0, dev, edge, in) })
}

func TestHeat_RunsToMaxTime(t *testing.T) {
	for _, threads := range []int{1, 3, 4} {
		// GIVEN an 8x8 grid for 10 steps in 4 clusters of 16 cells
		spec := heatSpec(8, 10)
		topo, err := Build(spec)
		require.NoError(t, err)
		cfg := sim.DefaultEngineConfig()
		cfg.Threads = threads
		cfg.Cluster.ClusterSize = 16
		cfg.Cluster.Policy = sim.PolicyGraph
		cfg.Transport.BundleCapacity = 8
		cfg.CheckOwnership = true

		// WHEN it runs
		e, err := cluster.NewEngine(topo, cfg)
		require.NoError(t, err)
		res, err := e.Run(context.Background())

		// THEN every cell reaches max_t and hardware idle exits the run
		require.NoError(t, err)
		assert.True(t, res.ExitRequested)
		assert.Equal(t, 4, res.Clusters)
		assert.Equal(t, uint64(2240), spec.Messages())
		assert.Equal(t, spec.Messages(), res.TotalMessages())
		assert.Equal(t, int64(1), res.IdleDeclarations)
		for _, d := range topo.Devices {
			assert.Equal(t, uint32(10), CellTime(d), d.ID)
		}
	}
}

func TestHeat_FixedBoundaryKeepsInitialValues(t *testing.T) {
	spec := heatSpec(4, 5)
	spec.Heat.FixedBoundary = true
	topo, err := Build(spec)
	require.NoError(t, err)
	initial := CellValue(topo.Devices[0])
	cfg := sim.DefaultEngineConfig()
	cfg.Threads = 1

	e, err := cluster.NewEngine(topo, cfg)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, initial, CellValue(topo.Devices[0]))
	assert.Equal(t, uint32(5), CellTime(topo.Devices[5]))
}

func u32(v uint32) []byte {
	b := sim.Bytes(make([]byte, 4))
	b.PutUint32(0, v)
	return b
}
