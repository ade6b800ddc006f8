package trace

// TraceSummary aggregates statistics from an IdleTrace.
type TraceSummary struct {
	Verifications    int
	Declared         int
	RejectedInFlight int
	RejectedActive   int
	Quiescent        int
	Unproductive     int
	// ConservedAtDeclare is true when every declared record had
	// Sent == Received.
	ConservedAtDeclare bool
	// MessagesPerIdle is the growth of TotalMessages between consecutive
	// declarations, in order.
	MessagesPerIdle []uint64
}

// Summarize computes aggregate statistics from an IdleTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(t *IdleTrace) *TraceSummary {
	summary := &TraceSummary{ConservedAtDeclare: true}
	if t == nil {
		return summary
	}

	summary.Verifications = len(t.Records)
	var last uint64
	for _, r := range t.Records {
		switch r.Outcome {
		case OutcomeDeclared:
			summary.Declared++
			if r.Sent != r.Received {
				summary.ConservedAtDeclare = false
			}
			summary.MessagesPerIdle = append(summary.MessagesPerIdle, r.TotalMessages-last)
			last = r.TotalMessages
		case OutcomeRejectedInFlight:
			summary.RejectedInFlight++
		case OutcomeRejectedActive:
			summary.RejectedActive++
		case OutcomeQuiescent:
			summary.Quiescent++
		case OutcomeUnproductive:
			summary.Unproductive++
		}
	}
	return summary
}
