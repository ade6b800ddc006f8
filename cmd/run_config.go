package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/trace"
	"github.com/poets-sim/poems/sim/workload"
)

// resolveEngineConfig starts from the defaults, overlays --config if set,
// then applies every flag the user set explicitly.
func resolveEngineConfig(cmd *cobra.Command) (sim.EngineConfig, error) {
	cfg := sim.DefaultEngineConfig()
	if configPath != "" {
		loaded, err := sim.LoadEngineConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		logrus.Debugf("loaded engine config from %s", configPath)
	}

	flags := cmd.Flags()
	if flags.Changed("threads") || configPath == "" {
		cfg.Threads = threads
	}
	if flags.Changed("cluster-size") || configPath == "" {
		cfg.Cluster.ClusterSize = clusterSize
	}
	if flags.Changed("partition") || configPath == "" {
		cfg.Cluster.Policy = partitionBy
	}
	if flags.Changed("seed") || configPath == "" {
		cfg.Cluster.Seed = seed
	}
	if flags.Changed("max-in-flight") {
		cfg.Transport.MaxInFlight = maxInFlight
	}
	if flags.Changed("check-ownership") {
		cfg.CheckOwnership = checkOwnership
	}
	if flags.Changed("trace-level") {
		cfg.TraceLevel = trace.TraceLevel(traceLevel)
	}
	if flags.Changed("progress") {
		d, err := time.ParseDuration(progressEvery)
		if err != nil {
			return cfg, fmt.Errorf("invalid --progress %q: %w", progressEvery, err)
		}
		cfg.ProgressInterval = d
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}

// resolveWorkloadSpec loads --workload-spec if set, otherwise builds the
// default spec for --workload with the size flags applied. An explicit
// --seed always wins.
func resolveWorkloadSpec(cmd *cobra.Command) (*workload.WorkloadSpec, error) {
	flags := cmd.Flags()
	var spec *workload.WorkloadSpec
	if workloadSpec != "" {
		loaded, err := workload.LoadWorkloadSpec(workloadSpec)
		if err != nil {
			return nil, err
		}
		spec = loaded
		if flags.Changed("seed") {
			spec.Seed = seed
		}
	} else {
		spec = workload.DefaultSpec(workloadKind, seed)
		if spec == nil {
			return nil, fmt.Errorf("unknown workload %q; valid: %v", workloadKind, workload.Kinds())
		}
		switch spec.Kind {
		case workload.KindHeat:
			spec.Heat.Size = heatSize
			spec.Heat.MaxTime = heatMaxT
		case workload.KindRing:
			spec.Ring.Rings = ringCount
			spec.Ring.Length = ringLength
			spec.Ring.Laps = ringLaps
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}
	return spec, nil
}

func buildWorkload(spec *workload.WorkloadSpec) (*sim.Topology, error) {
	topo, err := workload.Build(spec)
	if err != nil {
		return nil, fmt.Errorf("building %s workload: %w", spec.Kind, err)
	}
	return topo, nil
}
