package journal

import "time"

// RunRecord is one row of run history.
type RunRecord struct {
	ID              string
	Model           string
	Language        string
	Device          string
	Source          string
	SkipSeparation  bool
	State           string
	ExitCode        *int
	FallbackApplied bool
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Finished reports whether the run reached a terminal state.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Duration returns how long the run took, or zero while it is still open.
func (r RunRecord) Duration() time.Duration {
	if !r.Finished() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageRecord is the persisted result of one stage.
type StageRecord struct {
	RunID        string
	Stage        string
	Ordinal      int
	Outcome      string
	ExitCode     int
	Elapsed      time.Duration
	FallbackUsed bool
	Skipped      bool
	ErrorMessage string
}

// Filter narrows List results.
type Filter struct {
	Model string
	Limit int
}
