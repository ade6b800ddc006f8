package cmd

import (
	"fmt"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/cluster"
	"github.com/poets-sim/poems/sim/partition"
)

// BuildReport describes how a topology was partitioned.
type BuildReport struct {
	GraphID       string
	Policy        string
	Devices       int
	Clusters      int
	LocalEdges    int
	NonLocalEdges int
	EdgeCut       float64 // communication graph weight between clusters
	TotalWeight   float64
	ClusterSizes  cluster.Distribution
}

// partitionReport assigns topo to clusters with cfg and summarizes the
// result. topo is frozen afterwards.
func partitionReport(topo *sim.Topology, cfg sim.EngineConfig) (*BuildReport, error) {
	rng := sim.NewPartitionedRNG(sim.NewRunKey(cfg.Cluster.Seed))
	parts, k, err := partition.Assign(topo, cfg.Cluster, rng)
	if err != nil {
		return nil, fmt.Errorf("assigning clusters: %w", err)
	}
	if err := topo.ApplyAssignment(parts, k); err != nil {
		return nil, fmt.Errorf("assigning clusters: %w", err)
	}

	g := partition.CommunicationGraph(topo)
	local, nonLocal := topo.Locality()
	sizes := make([]float64, k)
	for c := range sizes {
		sizes[c] = float64(len(topo.Members(c)))
	}
	return &BuildReport{
		GraphID:       topo.GraphID,
		Policy:        cfg.Cluster.Policy,
		Devices:       len(topo.Devices),
		Clusters:      k,
		LocalEdges:    local,
		NonLocalEdges: nonLocal,
		EdgeCut:       partition.EdgeCut(g, parts),
		TotalWeight:   partition.TotalWeight(g),
		ClusterSizes:  cluster.NewDistribution(sizes),
	}, nil
}

// LocalFraction returns the share of edges that stay inside a cluster.
func (r *BuildReport) LocalFraction() float64 {
	total := r.LocalEdges + r.NonLocalEdges
	if total == 0 {
		return 0
	}
	return float64(r.LocalEdges) / float64(total)
}

// Print writes the report to stdout.
func (r *BuildReport) Print() {
	fmt.Println("=== Build Report ===")
	fmt.Printf("Graph                : %s\n", r.GraphID)
	fmt.Printf("Partition Policy     : %s\n", r.Policy)
	fmt.Printf("Devices              : %d\n", r.Devices)
	fmt.Printf("Clusters             : %d\n", r.Clusters)
	fmt.Printf("Cluster Size         : min=%.0f mean=%.1f max=%.0f\n", r.ClusterSizes.Min, r.ClusterSizes.Mean, r.ClusterSizes.Max)
	fmt.Printf("Local Edges          : %d (%.1f%%)\n", r.LocalEdges, 100*r.LocalFraction())
	fmt.Printf("Non-local Edges      : %d\n", r.NonLocalEdges)
	fmt.Printf("Edge Cut             : %.0f of %.0f\n", r.EdgeCut, r.TotalWeight)
}
