package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/workload"
)

func TestPartitionReport_GraphPolicyCutsFewerEdges(t *testing.T) {
	// GIVEN a 16x16 heat grid split into 4 clusters by each policy
	reports := map[string]*BuildReport{}
	for _, policy := range []string{sim.PolicyRandom, sim.PolicyGraph} {
		topo, err := buildWorkload(&workload.WorkloadSpec{Kind: workload.KindHeat, Seed: 1, Heat: &workload.HeatSpec{Size: 16, MaxTime: 1}})
		require.NoError(t, err)
		cfg := sim.DefaultEngineConfig()
		cfg.Cluster.ClusterSize = 64
		cfg.Cluster.Policy = policy

		// WHEN the report is computed
		r, err := partitionReport(topo, cfg)
		require.NoError(t, err)
		reports[policy] = r

		// THEN it covers every device and edge
		assert.True(t, topo.Frozen())
		assert.Equal(t, 256, r.Devices)
		assert.Equal(t, 4, r.Clusters)
		assert.Equal(t, 960, r.LocalEdges+r.NonLocalEdges)
		assert.Equal(t, 960.0, r.TotalWeight)
		assert.Equal(t, r.EdgeCut, float64(r.NonLocalEdges))
		assert.Equal(t, 64.0, r.ClusterSizes.Mean)
	}

	// THEN graph partitioning keeps more edges local
	assert.Less(t, reports[sim.PolicyGraph].EdgeCut, reports[sim.PolicyRandom].EdgeCut)
	assert.Greater(t, reports[sim.PolicyGraph].LocalFraction(), 0.5)
}

func TestBuildReport_LocalFraction_NoEdges(t *testing.T) {
	assert.Equal(t, 0.0, (&BuildReport{}).LocalFraction())
}
