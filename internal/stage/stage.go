package stage

import (
	"context"
	"fmt"
	"time"
)

// Name identifies a pipeline stage.
type Name string

const (
	Separation     Name = "separation"
	Slicing        Name = "slicing"
	Transcription  Name = "transcription"
	Formatting     Name = "formatting"
	Training       Name = "training"
	PostProcessing Name = "post_processing"
)

// Order is the fixed execution order.
var Order = []Name{Separation, Slicing, Transcription, Formatting, Training, PostProcessing}

// Label returns a human-readable stage name.
func (n Name) Label() string {
	switch n {
	case Separation:
		return "Separation"
	case Slicing:
		return "Slicing"
	case Transcription:
		return "Transcription"
	case Formatting:
		return "Formatting"
	case Training:
		return "Training"
	case PostProcessing:
		return "Post-processing"
	default:
		return string(n)
	}
}

// Ordinal returns the 1-based position of the stage, or 0 when unknown.
func (n Name) Ordinal() int {
	for i, name := range Order {
		if name == n {
			return i + 1
		}
	}
	return 0
}

// Outcome classifies how a stage process ended.
type Outcome string

const (
	Success  Outcome = "success"
	Failure  Outcome = "failure"
	NotFound Outcome = "not_found"
)

// ExitNotFound is the exit code reported when the stage executable or
// script is missing.
const ExitNotFound = 127

// Result is the outcome of executing one stage within one run.
type Result struct {
	Stage        Name
	Outcome      Outcome
	ExitCode     int
	Started      time.Time
	Elapsed      time.Duration
	FallbackUsed bool
	Skipped      bool
	Err          error
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool {
	return r.Outcome == Success
}

func (r Result) String() string {
	switch r.Outcome {
	case Success:
		if r.Skipped && r.FallbackUsed {
			return fmt.Sprintf("%s: skipped (fallback)", r.Stage.Label())
		}
		if r.Skipped {
			return fmt.Sprintf("%s: skipped", r.Stage.Label())
		}
		if r.FallbackUsed {
			return fmt.Sprintf("%s: success (fallback)", r.Stage.Label())
		}
		return fmt.Sprintf("%s: success", r.Stage.Label())
	case NotFound:
		return fmt.Sprintf("%s: command not found (exit %d)", r.Stage.Label(), r.ExitCode)
	default:
		return fmt.Sprintf("%s: failed (exit %d)", r.Stage.Label(), r.ExitCode)
	}
}

// Stage is one executable pipeline step. The orchestrator drives stages only
// through this interface so tests can substitute fakes.
type Stage interface {
	Name() Name
	Execute(ctx context.Context, rc RunContext) Result
}
