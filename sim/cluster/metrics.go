package cluster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/poets-sim/poems/sim/trace"
)

// Distribution captures statistical summary of a metric.
type Distribution struct {
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
	Min   float64
	Max   float64
	Count int
}

// NewDistribution computes a Distribution from raw values.
// Returns zero-value Distribution for empty input.
func NewDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Distribution{
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// percentile computes the p-th percentile using linear interpolation.
// Input must be sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// RunResult is what Engine.Run reports once every worker has stopped.
type RunResult struct {
	RunID         string
	ExitCode      int
	ExitRequested bool
	Elapsed       time.Duration

	Threads  int
	Clusters int
	Pinned   bool
	Devices  int

	LocalEdges    int
	NonLocalEdges int

	NonLocalSent     uint64
	NonLocalReceived uint64
	LocalMessages    uint64

	IdleDeclarations int64
	Verifications    int64

	PerCluster      []ClusterStats
	StepsPerCluster Distribution

	// Trace is nil unless idle tracing was enabled.
	Trace *trace.IdleTrace
}

// TotalMessages returns local plus received non-local messages.
func (r *RunResult) TotalMessages() uint64 {
	return r.LocalMessages + r.NonLocalReceived
}

// MessagesPerSecond returns delivered messages per wall-clock second.
func (r *RunResult) MessagesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.TotalMessages()) / r.Elapsed.Seconds()
}

// Print writes a human-readable summary to stdout.
func (r *RunResult) Print() {
	fmt.Println("=== Run Metrics ===")
	fmt.Printf("Run ID               : %s\n", r.RunID)
	if r.ExitRequested {
		fmt.Printf("Exit Code            : %d\n", r.ExitCode)
	} else {
		fmt.Printf("Exit Code            : (none requested)\n")
	}
	fmt.Printf("Elapsed              : %s\n", r.Elapsed.Round(time.Microsecond))
	fmt.Printf("Devices              : %d\n", r.Devices)
	fmt.Printf("Clusters / Threads   : %d / %d (pinned=%v)\n", r.Clusters, r.Threads, r.Pinned)
	fmt.Printf("Edges local/nonlocal : %d / %d\n", r.LocalEdges, r.NonLocalEdges)
	fmt.Printf("Local Messages       : %d\n", r.LocalMessages)
	fmt.Printf("Non-local Sent       : %d\n", r.NonLocalSent)
	fmt.Printf("Non-local Received   : %d\n", r.NonLocalReceived)
	fmt.Printf("Messages/sec         : %.0f\n", r.MessagesPerSecond())
	fmt.Printf("Idle Declarations    : %d\n", r.IdleDeclarations)
	fmt.Printf("Idle Verifications   : %d\n", r.Verifications)
	fmt.Printf("Steps per Cluster    : mean=%.1f p50=%.0f p99=%.0f max=%.0f\n",
		r.StepsPerCluster.Mean, r.StepsPerCluster.P50, r.StepsPerCluster.P99, r.StepsPerCluster.Max)

	if s := trace.Summarize(r.Trace); s.Verifications > 0 {
		fmt.Println("=== Idle Trace ===")
		fmt.Printf("Verifications        : %d\n", s.Verifications)
		fmt.Printf("Declared             : %d\n", s.Declared)
		fmt.Printf("Rejected (in flight) : %d\n", s.RejectedInFlight)
		fmt.Printf("Rejected (active)    : %d\n", s.RejectedActive)
		fmt.Printf("Quiescent            : %d\n", s.Quiescent)
		fmt.Printf("Unproductive         : %d\n", s.Unproductive)
	}
}
