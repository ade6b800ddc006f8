package cluster

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/internal/testutil"
	"github.com/poets-sim/poems/sim/trace"
)

func TestEngine_SourceToSinkAcrossClusters_ExitsAfterOneIdle(t *testing.T) {
	for _, threads := range []int{1, 2} {
		// GIVEN a source in cluster 0 sending one message to a sink in
		// cluster 1 that exits on hardware idle
		p := testutil.Provider(t, true)
		topo := sourceToSink(t, p, 1, true)
		e := mustEngine(t, topo, testConfig(threads))
		assert.Equal(t, threads == 2, e.Pinned())

		// WHEN the engine runs
		res, err := e.Run(context.Background())

		// THEN the message crosses exactly once and the graph exits after
		// the first idle
		require.NoError(t, err)
		assert.True(t, res.ExitRequested)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, uint64(1), res.NonLocalSent)
		assert.Equal(t, uint64(1), res.NonLocalReceived)
		assert.Equal(t, uint64(0), res.LocalMessages)
		assert.Equal(t, int64(1), res.IdleDeclarations)
		assert.Equal(t, uint32(1), testutil.SinkReceived(topo.Devices[1]))
		assert.Equal(t, uint32(1), testutil.SinkIdles(topo.Devices[1]))
	}
}

func TestEngine_SingleClusterRing_NoNonLocalTraffic(t *testing.T) {
	// GIVEN a ring of 1000 relays that all fit in one cluster
	p := testutil.Provider(t, true)
	topo := testutil.RelayRing(t, p, 1, 1000, 3000)
	cfg := testConfig(4)

	// WHEN the engine partitions and runs it
	e := mustEngine(t, topo, cfg)
	res, err := e.Run(context.Background())

	// THEN one cluster and one thread carry every message locally
	require.NoError(t, err)
	assert.Equal(t, 1, res.Clusters)
	assert.Equal(t, 1, res.Threads)
	assert.Equal(t, 0, res.NonLocalEdges)
	assert.Equal(t, uint64(0), res.NonLocalSent)
	assert.Equal(t, uint64(3000), res.LocalMessages)
	assert.True(t, res.ExitRequested)
}

func TestEngine_IndexedSends_DeliverInIndexOrder(t *testing.T) {
	for _, split := range []bool{false, true} {
		// GIVEN an indexed source with four edges declared with send
		// indices 3, 1, 0, 2 and tagged 10x their index
		p := testutil.Provider(t, false)
		topo := testutil.Load(t, p, func(b sim.GraphLoadEvents) {
			src := testutil.MustDevice(t, b, "indexed_source", "src", testutil.U32(4), nil)
			dst := testutil.MustDevice(t, b, "collector", "dst", nil, nil)
			for _, idx := range []int{3, 1, 0, 2} {
				testutil.MustEdge(t, b, dst, src, idx, testutil.U32(uint32(idx*10)))
			}
		})
		clusters := 1
		if split {
			clusters = 2
		}
		testutil.AssignAll(t, topo, clusters, func(d *sim.Device) int { return d.Index % clusters })
		cfg := testConfig(2)
		cfg.Idle.MaxUnproductiveIdles = 0

		// WHEN it runs until the watchdog stops the quiescent graph
		_, err := mustEngine(t, topo, cfg).Run(context.Background())

		// THEN each message arrived on the edge its index selected, in order
		require.ErrorIs(t, err, ErrIdleWatchdog)
		assert.Equal(t, []uint32{0, 10, 20, 30}, testutil.CollectedTags(topo.Devices[1]))
	}
}

func TestEngine_BoundedPingPong_OneIdleDeclaration(t *testing.T) {
	// GIVEN two relays in different clusters passing a token 5000 times
	p := testutil.Provider(t, true)
	topo := testutil.RelayRing(t, p, 1, 2, 5000)
	testutil.AssignAll(t, topo, 2, func(d *sim.Device) int { return d.Index })
	cfg := testConfig(2)
	cfg.Idle.MaxUnproductiveIdles = 1
	cfg.TraceLevel = trace.TraceLevelIdle

	// WHEN the engine runs
	res, err := mustEngine(t, topo, cfg).Run(context.Background())

	// THEN idle is declared exactly once, after the last hop
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.IdleDeclarations)
	assert.Equal(t, uint64(5000), res.NonLocalReceived)
	assert.Equal(t, uint32(5000), testutil.RelayHops(topo.Devices[0]))
	assert.Equal(t, uint32(4999), testutil.RelayHops(topo.Devices[1]))
	s := trace.Summarize(res.Trace)
	assert.Equal(t, 1, s.Declared)
	assert.True(t, s.ConservedAtDeclare)
	assert.Equal(t, []uint64{5000}, s.MessagesPerIdle)
}

func TestEngine_UnboundedPingPong_NeverIdle(t *testing.T) {
	// GIVEN a token relayed forever between two clusters
	p := testutil.Provider(t, true)
	topo := testutil.RelayRing(t, p, 1, 2, 0)
	testutil.AssignAll(t, topo, 2, func(d *sim.Device) int { return d.Index })
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// WHEN it runs until the deadline
	res, err := mustEngine(t, topo, testConfig(2)).Run(ctx)

	// THEN the deadline stops it and idle was never declared
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	require.NotNil(t, res)
	assert.False(t, res.ExitRequested)
	assert.Equal(t, int64(0), res.IdleDeclarations)
	assert.Positive(t, res.NonLocalReceived)
}

func TestEngine_Watchdog_FailsAfterUnproductiveIdles(t *testing.T) {
	// GIVEN a graph whose hardware idle handlers never exit or send
	p := testutil.Provider(t, false)
	topo := sourceToSink(t, p, 3, true)
	cfg := testConfig(2)
	cfg.TraceLevel = trace.TraceLevelIdle

	// WHEN the engine runs
	res, err := mustEngine(t, topo, cfg).Run(context.Background())

	// THEN idle is declared once, the repeat verifications leave hardware
	// idle alone, and the watchdog fires after MaxUnproductiveIdles of them
	require.ErrorIs(t, err, ErrIdleWatchdog)
	assert.Equal(t, int64(1), res.IdleDeclarations)
	s := trace.Summarize(res.Trace)
	assert.Equal(t, 1, s.Declared)
	assert.Equal(t, 2, s.Quiescent)
	assert.Equal(t, 1, s.Unproductive)
	assert.Equal(t, []uint64{3}, s.MessagesPerIdle)
	assert.Equal(t, uint32(1), testutil.SinkIdles(topo.Devices[1]))
}

func TestEngine_HardwareIdle_RerunsOnlyAfterDeviceWakes(t *testing.T) {
	// GIVEN one device that wakes on its first two hardware idles and
	// never sends
	p := testutil.Provider(t, false)
	topo := testutil.Load(t, p, func(b sim.GraphLoadEvents) {
		testutil.MustDevice(t, b, "waker", "w", testutil.U32(2), nil)
	})
	testutil.AssignAll(t, topo, 1, func(*sim.Device) int { return 0 })
	cfg := testConfig(1)
	cfg.Idle.MaxUnproductiveIdles = 5
	cfg.TraceLevel = trace.TraceLevelIdle

	// WHEN the engine runs until the watchdog stops it
	res, err := mustEngine(t, topo, cfg).Run(context.Background())

	// THEN hardware idle runs once per wake plus once more, and the later
	// quiescent verifications do not run it again
	require.ErrorIs(t, err, ErrIdleWatchdog)
	w := topo.Devices[0]
	assert.Equal(t, uint32(3), testutil.WakerIdles(w))
	assert.Equal(t, uint32(2), testutil.WakerComputes(w))
	s := trace.Summarize(res.Trace)
	assert.Equal(t, 3, s.Declared)
	assert.Equal(t, 3, s.Quiescent)
	assert.Equal(t, 1, s.Unproductive)
	assert.Equal(t, []uint64{0, 0, 0}, s.MessagesPerIdle)
	assert.Equal(t, uint64(3), res.PerCluster[0].HardwareIdles)
}

func TestEngine_SingleProc_WorkersYieldToEachOther(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))
	tests := []struct {
		name     string
		clusters int
		threads  int
		pinned   bool
	}{
		{name: "pinned", clusters: 2, threads: 2, pinned: true},
		{name: "queue", clusters: 4, threads: 2, pinned: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a ring whose relays each sit in their own cluster, run
			// by more workers than there are processors
			p := testutil.Provider(t, true)
			topo := testutil.RelayRing(t, p, 1, tt.clusters, 2000)
			testutil.AssignAll(t, topo, tt.clusters, func(d *sim.Device) int { return d.Index })
			e := mustEngine(t, topo, testConfig(tt.threads))
			require.Equal(t, tt.pinned, e.Pinned())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// WHEN every hop crosses a cluster boundary
			res, err := e.Run(ctx)

			// THEN the token completes its hops well inside the deadline
			require.NoError(t, err)
			assert.True(t, res.ExitRequested)
			assert.Equal(t, uint64(2000), res.NonLocalReceived)
			assert.Less(t, res.Elapsed, 5*time.Second)
		})
	}
}

func TestEngine_ManyRingsQueueMode_NoConcurrentDeviceAccess(t *testing.T) {
	for _, maxInFlight := range []int64{0, 1} {
		// GIVEN 8 rings of 50 guarded relays spread over 16 clusters
		// stepped by 4 workers
		guard := &testutil.Guard{DeviceType: testutil.Relay{ExitOnIdle: true}}
		p, err := sim.NewProvider(sim.GraphTypeInfo{ID: testutil.GraphTypeID, MaxMessageSize: 4}, guard)
		require.NoError(t, err)
		topo := testutil.RelayRing(t, p, 8, 50, 2000)
		cfg := testConfig(4)
		cfg.Cluster.ClusterSize = 25
		cfg.Transport.BundleCapacity = 4
		cfg.Transport.MaxInFlight = maxInFlight

		// WHEN the engine runs
		e := mustEngine(t, topo, cfg)
		assert.False(t, e.Pinned())
		res, err := e.Run(context.Background())

		// THEN every hop is delivered exactly once and no device was ever
		// touched by two goroutines at once
		require.NoError(t, err)
		assert.Equal(t, 16, res.Clusters)
		assert.Equal(t, uint64(8*2000), res.TotalMessages())
		assert.Equal(t, res.NonLocalSent, res.NonLocalReceived)
		assert.Equal(t, int64(0), guard.Violations.Load())
		assert.Positive(t, guard.Calls.Load())
		for r := 0; r < 8; r++ {
			assert.Equal(t, uint32(2000), testutil.RelayHops(topo.Devices[r*50+(2000%50)]))
		}
	}
}

func TestNewEngine_ThreadsCappedAtClusters(t *testing.T) {
	// GIVEN a two-cluster graph and eight requested threads
	p := testutil.Provider(t, true)
	topo := sourceToSink(t, p, 1, true)

	// WHEN the engine is built
	e := mustEngine(t, topo, testConfig(8))

	// THEN it uses one pinned worker per cluster
	assert.Equal(t, 2, e.Threads())
	assert.True(t, e.Pinned())
	assert.Len(t, e.Clusters(), 2)
	assert.NotEmpty(t, e.RunID())
}

func TestNewEngine_InitSetsActiveBits(t *testing.T) {
	// GIVEN a source with messages to send and an empty sink
	p := testutil.Provider(t, true)
	topo := sourceToSink(t, p, 2, true)

	// WHEN the engine is built
	e := mustEngine(t, topo, testConfig(2))

	// THEN only the source is active
	assert.Equal(t, 1, e.Clusters()[0].ActiveDevices())
	assert.Equal(t, 0, e.Clusters()[1].ActiveDevices())
}

func TestNewEngine_InvalidConfig_ReturnsError(t *testing.T) {
	p := testutil.Provider(t, true)
	topo := sourceToSink(t, p, 1, false)
	cfg := testConfig(1)
	cfg.Transport.BundleCapacity = 0

	_, err := NewEngine(topo, cfg)

	assert.Error(t, err)
}

func TestEngine_RunTwice_Panics(t *testing.T) {
	// GIVEN an engine that has already run
	p := testutil.Provider(t, true)
	e := mustEngine(t, sourceToSink(t, p, 1, false), testConfig(1))
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	// WHEN/THEN running it again panics
	assert.Panics(t, func() { _, _ = e.Run(context.Background()) })
}

func TestEngine_Snapshot_ReflectsFinishedRun(t *testing.T) {
	p := testutil.Provider(t, true)
	e := mustEngine(t, sourceToSink(t, p, 5, true), testConfig(2))
	assert.Equal(t, time.Duration(0), e.Snapshot().Elapsed)

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	s := e.Snapshot()
	assert.Equal(t, uint64(5), s.NonLocalSent)
	assert.Equal(t, int64(0), s.InFlight)
	assert.Equal(t, int64(1), s.IdleDeclarations)
	assert.Positive(t, s.BundlesAllocated)
}
