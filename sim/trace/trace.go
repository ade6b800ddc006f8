package trace

// TraceLevel controls the verbosity of idle tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelIdle captures every idle verification.
	TraceLevelIdle TraceLevel = "idle"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone: true,
	TraceLevelIdle: true,
	"":             true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Enabled reports whether the level records anything.
func (l TraceLevel) Enabled() bool {
	return l == TraceLevelIdle
}

// IdleTrace collects idle verification records during a run. It is only
// written by the goroutine holding the idle barrier, and only read after
// the run.
type IdleTrace struct {
	Level   TraceLevel
	Records []IdleRecord
}

// NewIdleTrace creates an IdleTrace ready for recording.
func NewIdleTrace(level TraceLevel) *IdleTrace {
	return &IdleTrace{
		Level:   level,
		Records: make([]IdleRecord, 0),
	}
}

// Record appends a verification record, numbering it. No-op on a nil trace.
func (t *IdleTrace) Record(r IdleRecord) {
	if t == nil {
		return
	}
	r.Seq = len(t.Records)
	t.Records = append(t.Records, r)
}
