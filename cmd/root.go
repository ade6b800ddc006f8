package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/poets-sim/poems/sim/cluster"
)

var (
	// Engine flags; explicitly set ones override --config.
	configPath     string // YAML engine config overlay
	threads        int    // Worker goroutines (0 = GOMAXPROCS)
	clusterSize    int    // Target devices per cluster
	partitionBy    string // Partition policy: random or graph
	seed           int64  // Seed for partitioning and workload generation
	maxInFlight    int64  // Backpressure cap on in-flight non-local messages
	checkOwnership bool   // Claim clusters atomically on every step
	traceLevel     string // Idle trace level
	progressEvery  string // Progress log interval, e.g. 5s

	// Workload flags
	workloadKind string // Built-in workload kind
	workloadSpec string // YAML workload spec; overrides --workload
	heatSize     int    // Heat grid side length
	heatMaxT     uint32 // Heat time steps
	ringCount    int    // Token rings
	ringLength   int    // Nodes per ring
	ringLaps     int    // Laps per token

	// Output flags
	logLevel  string // Log verbosity level
	statsFile string // YAML stats output path
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "poems",
	Short: "Multi-threaded, cluster-partitioned device graph engine",
}

// runCmd builds a workload graph, partitions it and runs it to completion
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build, partition and run a workload graph",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		cfg, err := resolveEngineConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		spec, err := resolveWorkloadSpec(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo, err := buildWorkload(spec)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		e, err := cluster.NewEngine(topo, cfg)
		if err != nil {
			logrus.Fatalf("building engine: %v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logrus.Infof("Starting run %s: workload=%s, threads=%d", e.RunID(), spec.Kind, e.Threads())
		res, err := e.Run(ctx)
		res.Print()
		if statsFile != "" {
			if werr := writeStats(statsFile, newRunStats(res, spec, cfg)); werr != nil {
				logrus.Errorf("writing stats: %v", werr)
			}
		}
		if err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
		logrus.Info("Run complete.")
		if res.ExitRequested && res.ExitCode != 0 {
			stop()
			os.Exit(res.ExitCode)
		}
	},
}

// buildCmd builds and partitions a workload graph without running it
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and partition a workload graph and report locality",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		cfg, err := resolveEngineConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		spec, err := resolveWorkloadSpec(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		topo, err := buildWorkload(spec)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report, err := partitionReport(topo, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report.Print()
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	if _, err := maxprocs.Set(maxprocs.Logger(logrus.Debugf)); err != nil {
		logrus.Warnf("setting GOMAXPROCS: %v", err)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "YAML engine config; explicitly set flags override it")
	cmd.Flags().IntVar(&threads, "threads", 0, "Worker goroutines (0 = GOMAXPROCS)")
	cmd.Flags().IntVar(&clusterSize, "cluster-size", 1024, "Target devices per cluster")
	cmd.Flags().StringVar(&partitionBy, "partition", "random", "Partition policy (random, graph)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Seed for partitioning and workload generation")
	cmd.Flags().Int64Var(&maxInFlight, "max-in-flight", 0, "Pause sends above this many in-flight non-local messages (0 = off)")
	cmd.Flags().BoolVar(&checkOwnership, "check-ownership", false, "Claim clusters atomically on every step and panic on overlap")
	cmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Idle trace level (none, idle)")
	cmd.Flags().StringVar(&progressEvery, "progress", "0s", "Progress log interval (0s = off)")

	cmd.Flags().StringVar(&workloadKind, "workload", "heat", "Built-in workload (heat, ring)")
	cmd.Flags().StringVar(&workloadSpec, "workload-spec", "", "YAML workload spec; replaces --workload")
	cmd.Flags().IntVar(&heatSize, "heat-size", 100, "Heat grid side length")
	cmd.Flags().Uint32Var(&heatMaxT, "heat-max-t", 10, "Heat time steps")
	cmd.Flags().IntVar(&ringCount, "rings", 16, "Token rings")
	cmd.Flags().IntVar(&ringLength, "ring-length", 64, "Nodes per ring")
	cmd.Flags().IntVar(&ringLaps, "laps", 10, "Laps per token")

	cmd.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
}

// init sets up CLI flags and subcommands
func init() {
	registerFlags(runCmd)
	runCmd.Flags().StringVar(&statsFile, "stats-file", "", "Write a YAML run summary to this path")
	registerFlags(buildCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
}
