// Package partition assigns devices to clusters.
//
// Two policies are provided: RandomShard, which shuffles devices and deals
// them round-robin, and graph partitioning, which hands the device
// communication graph to a Partitioner and asks for a fixed number of
// equal-weight parts. Assign applies the configured policy.
package partition

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/poets-sim/poems/sim"
)

// ClusterCount returns the number of clusters for n devices at the given
// target cluster size. Always at least 1.
func ClusterCount(n, clusterSize int) int {
	if clusterSize < 1 {
		panic("partition: cluster size must be >= 1")
	}
	return max(1, n/clusterSize)
}

// Assign computes a cluster for every device of topo according to cfg and
// returns the assignment and the cluster count. It does not modify topo.
func Assign(topo *sim.Topology, cfg sim.ClusterConfig, rng *sim.PartitionedRNG) ([]int, int, error) {
	n := len(topo.Devices)
	clusters := ClusterCount(n, cfg.ClusterSize)
	switch cfg.Policy {
	case "", sim.PolicyRandom:
		parts := RandomShard(n, clusters, rng.ForSubsystem(sim.SubsystemPartition))
		return parts, clusters, nil
	case sim.PolicyGraph:
		g := CommunicationGraph(topo)
		p := &GreedyGrowing{Passes: cfg.RefinePasses}
		parts, err := GraphPartition(g, clusters, p)
		if err != nil {
			return nil, 0, err
		}
		logrus.Debugf("graph partition: %d parts, edge cut %.0f of %.0f", clusters, EdgeCut(g, parts), TotalWeight(g))
		return parts, clusters, nil
	default:
		return nil, 0, fmt.Errorf("unknown partition policy %q", cfg.Policy)
	}
}
