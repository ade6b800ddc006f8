package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/cluster"
	"github.com/poets-sim/poems/sim/workload"
)

// RunStats is the YAML summary written by --stats-file.
type RunStats struct {
	RunID          string                 `yaml:"run_id"`
	Workload       *workload.WorkloadSpec `yaml:"workload"`
	Engine         sim.EngineConfig       `yaml:"engine"`
	ExitCode       *int                   `yaml:"exit_code"` // nil when no exit was requested
	ElapsedSeconds float64                `yaml:"elapsed_seconds"`

	Threads       int  `yaml:"threads"`
	Clusters      int  `yaml:"clusters"`
	Pinned        bool `yaml:"pinned"`
	Devices       int  `yaml:"devices"`
	LocalEdges    int  `yaml:"local_edges"`
	NonLocalEdges int  `yaml:"non_local_edges"`

	LocalMessages     uint64  `yaml:"local_messages"`
	NonLocalSent      uint64  `yaml:"non_local_sent"`
	NonLocalReceived  uint64  `yaml:"non_local_received"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	IdleDeclarations  int64   `yaml:"idle_declarations"`
	Verifications     int64   `yaml:"idle_verifications"`

	StepsPerClusterMean float64 `yaml:"steps_per_cluster_mean"`
	StepsPerClusterMax  float64 `yaml:"steps_per_cluster_max"`
}

func newRunStats(res *cluster.RunResult, spec *workload.WorkloadSpec, cfg sim.EngineConfig) *RunStats {
	s := &RunStats{
		RunID:               res.RunID,
		Workload:            spec,
		Engine:              cfg,
		ElapsedSeconds:      res.Elapsed.Seconds(),
		Threads:             res.Threads,
		Clusters:            res.Clusters,
		Pinned:              res.Pinned,
		Devices:             res.Devices,
		LocalEdges:          res.LocalEdges,
		NonLocalEdges:       res.NonLocalEdges,
		LocalMessages:       res.LocalMessages,
		NonLocalSent:        res.NonLocalSent,
		NonLocalReceived:    res.NonLocalReceived,
		MessagesPerSecond:   res.MessagesPerSecond(),
		IdleDeclarations:    res.IdleDeclarations,
		Verifications:       res.Verifications,
		StepsPerClusterMean: res.StepsPerCluster.Mean,
		StepsPerClusterMax:  res.StepsPerCluster.Max,
	}
	if res.ExitRequested {
		code := res.ExitCode
		s.ExitCode = &code
	}
	return s
}

// writeStats writes s to path as YAML.
func writeStats(path string, s *RunStats) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
