package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poets-sim/poems/sim/trace"
)

// Partition policy names.
const (
	PolicyRandom = "random"
	PolicyGraph  = "graph"
)

// ValidPartitionPolicies is the set of recognized partition policy names.
var ValidPartitionPolicies = map[string]bool{"": true, PolicyRandom: true, PolicyGraph: true}

// ClusterConfig groups cluster assignment parameters.
type ClusterConfig struct {
	ClusterSize int    `yaml:"cluster_size"` // target devices per cluster (> 0)
	Policy      string `yaml:"policy"`       // "random" (default) or "graph"
	Seed        int64  `yaml:"seed"`
	// RefinePasses bounds boundary refinement in the graph partitioner.
	RefinePasses int `yaml:"refine_passes"`
}

// PoolConfig sizes the per-worker bundle pools.
type PoolConfig struct {
	LocalHighWater int `yaml:"local_high_water"` // local free bundles before shedding
	RefillBatch    int `yaml:"refill_batch"`     // bundles taken from the shared pool per refill
	ShedBatch      int `yaml:"shed_batch"`       // bundles returned to the shared pool per shed
	SharedMax      int `yaml:"shared_max"`       // shared free bundles kept; excess is released
}

// TransportConfig groups inter-cluster transport parameters.
type TransportConfig struct {
	BundleCapacity int `yaml:"bundle_capacity"` // messages per bundle (> 0)
	// MaxInFlight pauses sends while more non-local messages than this are
	// in flight. 0 disables backpressure.
	MaxInFlight int64      `yaml:"max_in_flight"`
	Pool        PoolConfig `yaml:"pool"`
}

// IdleConfig groups idle detection parameters.
type IdleConfig struct {
	// ThresholdFactor scales the consecutive-inactive-steps threshold,
	// which is ThresholdFactor * clusters.
	ThresholdFactor int `yaml:"threshold_factor"`
	// MaxUnproductiveIdles fails the run after this many consecutive idle
	// verifications with no messages in between.
	MaxUnproductiveIdles int `yaml:"max_unproductive_idles"`
}

// EngineConfig holds every run-time parameter of the engine.
type EngineConfig struct {
	Threads   int             `yaml:"threads"` // 0 = GOMAXPROCS
	Cluster   ClusterConfig   `yaml:"cluster"`
	Transport TransportConfig `yaml:"transport"`
	Idle      IdleConfig      `yaml:"idle"`
	// CheckOwnership makes every cluster step claim the cluster atomically
	// and panic on a concurrent claim.
	CheckOwnership   bool             `yaml:"check_ownership"`
	ProgressInterval time.Duration    `yaml:"progress_interval"` // 0 disables progress reporting
	TraceLevel       trace.TraceLevel `yaml:"trace_level"`
}

// DefaultEngineConfig returns the configuration used when nothing is set.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Cluster: ClusterConfig{
			ClusterSize:  1024,
			Policy:       PolicyRandom,
			RefinePasses: 4,
		},
		Transport: TransportConfig{
			BundleCapacity: 64,
			Pool: PoolConfig{
				LocalHighWater: 1024,
				RefillBatch:    16,
				ShedBatch:      256,
				SharedMax:      1 << 16,
			},
		},
		Idle: IdleConfig{
			ThresholdFactor:      2,
			MaxUnproductiveIdles: 16,
		},
		TraceLevel: trace.TraceLevelNone,
	}
}

// Validate checks every field range.
func (c *EngineConfig) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", c.Threads)
	}
	if c.Cluster.ClusterSize < 1 {
		return fmt.Errorf("cluster_size must be >= 1, got %d", c.Cluster.ClusterSize)
	}
	if !ValidPartitionPolicies[c.Cluster.Policy] {
		return fmt.Errorf("unknown partition policy %q", c.Cluster.Policy)
	}
	if c.Cluster.RefinePasses < 0 {
		return fmt.Errorf("refine_passes must be >= 0, got %d", c.Cluster.RefinePasses)
	}
	if c.Transport.BundleCapacity < 1 {
		return fmt.Errorf("bundle_capacity must be >= 1, got %d", c.Transport.BundleCapacity)
	}
	if c.Transport.MaxInFlight < 0 {
		return fmt.Errorf("max_in_flight must be >= 0, got %d", c.Transport.MaxInFlight)
	}
	p := c.Transport.Pool
	if p.RefillBatch < 1 || p.ShedBatch < 1 {
		return fmt.Errorf("pool refill_batch and shed_batch must be >= 1, got %d and %d", p.RefillBatch, p.ShedBatch)
	}
	if p.LocalHighWater < p.ShedBatch {
		return fmt.Errorf("pool local_high_water (%d) must be >= shed_batch (%d)", p.LocalHighWater, p.ShedBatch)
	}
	if p.SharedMax < 0 {
		return fmt.Errorf("pool shared_max must be >= 0, got %d", p.SharedMax)
	}
	if c.Idle.ThresholdFactor < 1 {
		return fmt.Errorf("threshold_factor must be >= 1, got %d", c.Idle.ThresholdFactor)
	}
	if c.Idle.MaxUnproductiveIdles < 0 {
		return fmt.Errorf("max_unproductive_idles must be >= 0, got %d", c.Idle.MaxUnproductiveIdles)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress_interval must be >= 0, got %s", c.ProgressInterval)
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("unknown trace level %q", c.TraceLevel)
	}
	return nil
}

// LoadEngineConfig reads a YAML overlay onto DefaultEngineConfig. Unknown
// keys are errors.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading engine config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}
