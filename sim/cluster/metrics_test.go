package cluster

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/poets-sim/poems/sim/trace"
)

func TestDistribution_FromValues_ComputesCorrectStats(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		wantMin  float64
		wantMax  float64
		wantMean float64
		wantP50  float64
	}{
		{name: "single value", values: []float64{100}, wantMin: 100, wantMax: 100, wantMean: 100, wantP50: 100},
		{name: "unsorted values", values: []float64{50, 10, 40, 20, 30}, wantMin: 10, wantMax: 50, wantMean: 30, wantP50: 30},
		{name: "interpolated median", values: []float64{1, 2, 3, 4}, wantMin: 1, wantMax: 4, wantMean: 2.5, wantP50: 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDistribution(tt.values)
			assert.Equal(t, len(tt.values), d.Count)
			assert.Equal(t, tt.wantMin, d.Min)
			assert.Equal(t, tt.wantMax, d.Max)
			assert.InDelta(t, tt.wantMean, d.Mean, 1e-9)
			assert.InDelta(t, tt.wantP50, d.P50, 1e-9)
		})
	}
}

func TestDistribution_EmptyValues_ReturnsZero(t *testing.T) {
	assert.Equal(t, Distribution{}, NewDistribution(nil))
}

func TestRunResult_MessagesPerSecond(t *testing.T) {
	r := &RunResult{Elapsed: 2 * time.Second, LocalMessages: 30, NonLocalReceived: 10}
	assert.Equal(t, uint64(40), r.TotalMessages())
	assert.Equal(t, 20.0, r.MessagesPerSecond())
	assert.Equal(t, 0.0, (&RunResult{LocalMessages: 5}).MessagesPerSecond())
}

func TestRunResult_Print_WritesSummaryToStdout(t *testing.T) {
	// GIVEN a result with an idle trace
	it := trace.NewIdleTrace(trace.TraceLevelIdle)
	it.Record(trace.IdleRecord{Outcome: trace.OutcomeDeclared})
	r := &RunResult{RunID: "run-1", ExitRequested: true, Trace: it}

	// Capture stdout
	old := os.Stdout
	rd, w, _ := os.Pipe()
	os.Stdout = w

	// WHEN it is printed
	r.Print()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, rd)

	// THEN both the metrics and the trace summary appear
	out := buf.String()
	assert.Contains(t, out, "=== Run Metrics ===")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "=== Idle Trace ===")
}
