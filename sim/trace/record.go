// Package trace provides idle-verification trace recording for engine runs.
// This package has no dependencies on sim/ or sim/cluster/; it stores pure data types.
package trace

import "time"

// Outcome is the result of one idle verification.
type Outcome string

const (
	// OutcomeDeclared means the graph was verified idle and hardware idle
	// was scheduled on every cluster.
	OutcomeDeclared Outcome = "declared"
	// OutcomeRejectedInFlight means non-local messages were still in flight.
	OutcomeRejectedInFlight Outcome = "rejected-in-flight"
	// OutcomeRejectedActive means at least one cluster was still active.
	OutcomeRejectedActive Outcome = "rejected-active"
	// OutcomeQuiescent means the graph was idle with nothing moved or woken
	// since the last declaration, so hardware idle was not run again.
	OutcomeQuiescent Outcome = "quiescent"
	// OutcomeUnproductive means the idle watchdog tripped.
	OutcomeUnproductive Outcome = "unproductive"
)

// IdleRecord captures a single idle verification made by the last worker
// to enter the idle barrier.
type IdleRecord struct {
	Seq            int
	Elapsed        time.Duration // since the run started
	Outcome        Outcome
	Sent           uint64 // non-local messages sent
	Received       uint64 // non-local messages received
	ActiveClusters int
	TotalMessages  uint64 // non-local plus local messages
}
