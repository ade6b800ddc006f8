package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/trace"
	"github.com/poets-sim/poems/sim/workload"
)

// newTestCommand returns a command with every flag registered at its
// default, resetting the package-level flag variables.
func newTestCommand(t *testing.T, args map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	registerFlags(cmd)
	for name, value := range args {
		require.NoError(t, cmd.Flags().Set(name, value), name)
	}
	return cmd
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveEngineConfig_DefaultsFromFlags(t *testing.T) {
	// GIVEN no flags and no config file
	cmd := newTestCommand(t, nil)

	// WHEN the engine config is resolved
	cfg, err := resolveEngineConfig(cmd)

	// THEN it is the default config with the flag defaults applied
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Cluster.ClusterSize)
	assert.Equal(t, sim.PolicyRandom, cfg.Cluster.Policy)
	assert.Equal(t, int64(1), cfg.Cluster.Seed)
	assert.Equal(t, 64, cfg.Transport.BundleCapacity)
	assert.Equal(t, trace.TraceLevelNone, cfg.TraceLevel)
}

func TestResolveEngineConfig_ExplicitFlagsOverrideFile(t *testing.T) {
	// GIVEN a config file setting threads and cluster size
	path := writeFile(t, "engine.yaml", "threads: 3\ncluster:\n  cluster_size: 64\n  policy: graph\ntransport:\n  bundle_capacity: 16\n")

	// WHEN --cluster-size is also given
	cmd := newTestCommand(t, map[string]string{
		"config":       path,
		"cluster-size": "32",
		"trace-level":  "idle",
		"progress":     "250ms",
	})
	cfg, err := resolveEngineConfig(cmd)

	// THEN the flag wins and the rest of the file is kept
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Threads)
	assert.Equal(t, 32, cfg.Cluster.ClusterSize)
	assert.Equal(t, sim.PolicyGraph, cfg.Cluster.Policy)
	assert.Equal(t, 16, cfg.Transport.BundleCapacity)
	assert.Equal(t, trace.TraceLevelIdle, cfg.TraceLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval)
}

func TestResolveEngineConfig_InvalidValues_ReturnError(t *testing.T) {
	tests := map[string]map[string]string{
		"partition":   {"partition": "metis"},
		"trace level": {"trace-level": "verbose"},
		"progress":    {"progress": "soon"},
		"threads":     {"threads": "-1"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := resolveEngineConfig(newTestCommand(t, args))
			assert.Error(t, err)
		})
	}
}

func TestResolveEngineConfig_UnknownFileKey_ReturnsError(t *testing.T) {
	path := writeFile(t, "engine.yaml", "treads: 3\n")

	_, err := resolveEngineConfig(newTestCommand(t, map[string]string{"config": path}))

	assert.Error(t, err)
}

func TestResolveWorkloadSpec_FromFlags(t *testing.T) {
	cmd := newTestCommand(t, map[string]string{
		"workload":    "ring",
		"rings":       "2",
		"ring-length": "5",
		"laps":        "3",
		"seed":        "9",
	})

	spec, err := resolveWorkloadSpec(cmd)

	require.NoError(t, err)
	assert.Equal(t, workload.KindRing, spec.Kind)
	assert.Equal(t, int64(9), spec.Seed)
	assert.Equal(t, &workload.RingSpec{Rings: 2, Length: 5, Laps: 3}, spec.Ring)
}

func TestResolveWorkloadSpec_FileWithSeedOverride(t *testing.T) {
	// GIVEN a workload file with seed 5
	path := writeFile(t, "workload.yaml", "kind: heat\nseed: 5\nheat:\n  size: 6\n  max_t: 2\n")

	// WHEN loaded with and without an explicit --seed
	fromFile, err := resolveWorkloadSpec(newTestCommand(t, map[string]string{"workload-spec": path}))
	require.NoError(t, err)
	overridden, err := resolveWorkloadSpec(newTestCommand(t, map[string]string{"workload-spec": path, "seed": "8"}))
	require.NoError(t, err)

	// THEN only the explicit flag replaces the file's seed
	assert.Equal(t, int64(5), fromFile.Seed)
	assert.Equal(t, int64(8), overridden.Seed)
	assert.Equal(t, 6, overridden.Heat.Size)
}

func TestResolveWorkloadSpec_UnknownKind_ReturnsError(t *testing.T) {
	_, err := resolveWorkloadSpec(newTestCommand(t, map[string]string{"workload": "mesh"}))
	assert.Error(t, err)
}
