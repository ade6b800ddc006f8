package trace

import "testing"

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	// GIVEN no trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN all counts are zero and conservation trivially holds
	if summary.Verifications != 0 || summary.Declared != 0 {
		t.Errorf("expected zero counts, got %+v", summary)
	}
	if !summary.ConservedAtDeclare {
		t.Error("expected conservation to hold on an empty trace")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with every outcome
	it := NewIdleTrace(TraceLevelIdle)
	it.Record(IdleRecord{Outcome: OutcomeRejectedInFlight, Sent: 10, Received: 8})
	it.Record(IdleRecord{Outcome: OutcomeRejectedActive, Sent: 10, Received: 10, ActiveClusters: 1})
	it.Record(IdleRecord{Outcome: OutcomeDeclared, Sent: 10, Received: 10, TotalMessages: 30})
	it.Record(IdleRecord{Outcome: OutcomeDeclared, Sent: 12, Received: 12, TotalMessages: 35})
	it.Record(IdleRecord{Outcome: OutcomeQuiescent, Sent: 12, Received: 12, TotalMessages: 35})
	it.Record(IdleRecord{Outcome: OutcomeUnproductive, Sent: 12, Received: 12, TotalMessages: 35})

	// WHEN summarized
	summary := Summarize(it)

	// THEN counts match
	if summary.Verifications != 6 {
		t.Errorf("expected 6 verifications, got %d", summary.Verifications)
	}
	if summary.Declared != 2 || summary.RejectedInFlight != 1 || summary.RejectedActive != 1 || summary.Quiescent != 1 || summary.Unproductive != 1 {
		t.Errorf("unexpected outcome counts: %+v", summary)
	}
	if !summary.ConservedAtDeclare {
		t.Error("expected conservation at every declaration")
	}
	// AND message growth per declaration is recorded
	if len(summary.MessagesPerIdle) != 2 || summary.MessagesPerIdle[0] != 30 || summary.MessagesPerIdle[1] != 5 {
		t.Errorf("expected growth [30 5], got %v", summary.MessagesPerIdle)
	}
}

func TestSummarize_DeclaredWithMessagesInFlight_FlagsViolation(t *testing.T) {
	it := NewIdleTrace(TraceLevelIdle)
	it.Record(IdleRecord{Outcome: OutcomeDeclared, Sent: 3, Received: 2})

	if Summarize(it).ConservedAtDeclare {
		t.Error("expected conservation violation to be reported")
	}
}
