package workload

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poets-sim/poems/sim"
)

type generator struct {
	provider func() (*sim.Provider, error)
	generate func(ev sim.GraphLoadEvents, spec *WorkloadSpec, rng *rand.Rand) error
}

var generators = map[string]generator{
	KindHeat: {
		provider: HeatProvider,
		generate: func(ev sim.GraphLoadEvents, spec *WorkloadSpec, rng *rand.Rand) error {
			return GenerateHeat(ev, spec.Heat, rng)
		},
	},
	KindRing: {
		provider: RingProvider,
		generate: func(ev sim.GraphLoadEvents, spec *WorkloadSpec, rng *rand.Rand) error {
			return GenerateRing(ev, spec.Ring, rng)
		},
	},
}

// Build validates spec, generates its graph through a sim.Builder and
// returns the unassigned topology. The same spec always produces the same
// topology.
func Build(spec *WorkloadSpec) (*sim.Topology, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	g := generators[spec.Kind]
	p, err := g.provider()
	if err != nil {
		return nil, fmt.Errorf("registering %s device types: %w", spec.Kind, err)
	}

	start := time.Now()
	rng := sim.NewPartitionedRNG(sim.NewRunKey(spec.Seed))
	b := sim.NewBuilder(p)
	if err := g.generate(b, spec, rng.ForSubsystem(sim.SubsystemWorkload)); err != nil {
		return nil, fmt.Errorf("generating %s graph: %w", spec.Kind, err)
	}
	topo, err := b.Topology()
	if err != nil {
		return nil, err
	}
	logrus.Infof("generated %s graph %q: %d devices, %d edges in %s",
		spec.Kind, topo.GraphID, len(topo.Devices), topo.EdgeCount(), time.Since(start).Round(time.Millisecond))
	return topo, nil
}
