package prefetch

// Skip reasons reported to Metrics.Skipped.
const (
	SkipNetwork   = "network"
	SkipDuplicate = "duplicate"
	SkipClosed    = "closed"
)

// Task outcomes reported to Metrics.Completed.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics receives scheduler signals. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Submitted()
	Skipped(reason string)
	Completed(outcome string)
	Running(n int)
}

// NoopMetrics discards all signals.
type NoopMetrics struct{}

func (NoopMetrics) Submitted()       {}
func (NoopMetrics) Skipped(string)   {}
func (NoopMetrics) Completed(string) {}
func (NoopMetrics) Running(int)      {}
