package pipeline

import (
	"fmt"
	"strings"
	"time"

	"voxclone/internal/deps"
	"voxclone/internal/stage"
)

// Report is the record of one run, complete or aborted.
type Report struct {
	Run             Run
	State           State
	Transitions     []State
	Results         []stage.Result
	Dependencies    []deps.Report
	Source          string
	ModelLogDir     string
	FallbackApplied bool
	ExitCode        int
	Err             error
	Finished        time.Time
}

func newReport(run Run) *Report {
	return &Report{Run: run, State: StateInit, Transitions: []State{StateInit}}
}

func (r *Report) transition(next State) {
	if !r.State.CanTransition(next) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", r.State, next))
	}
	r.State = next
	if n := len(r.Transitions); n == 0 || r.Transitions[n-1] != next {
		r.Transitions = append(r.Transitions, next)
	}
}

// Elapsed returns the wall time of the run.
func (r *Report) Elapsed() time.Duration {
	if r.Finished.IsZero() {
		return time.Since(r.Run.Started)
	}
	return r.Finished.Sub(r.Run.Started)
}

// Result returns the recorded result for name, if the stage ran.
func (r *Report) Result(name stage.Name) (stage.Result, bool) {
	for _, res := range r.Results {
		if res.Stage == name {
			return res, true
		}
	}
	return stage.Result{}, false
}

// Summary renders the report for the terminal. An aborted run names the
// failing step and the exit code.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s  model=%s  language=%s\n", r.Run.ShortID(), r.Run.Model, r.Run.Language)
	for _, res := range r.Results {
		fmt.Fprintf(&b, "  [%d/%d] %s (%s)\n", res.Stage.Ordinal(), len(stage.Order), res.String(), res.Elapsed.Round(time.Millisecond))
	}
	for _, dep := range r.Dependencies {
		if dep.Outcome == deps.InstallFailed {
			fmt.Fprintf(&b, "  warning: python package %s could not be installed\n", dep.Package)
		}
	}
	switch r.State {
	case StateCompleted:
		fmt.Fprintf(&b, "Completed in %s. Model output: %s\n", r.Elapsed().Round(time.Second), r.ModelLogDir)
	case StateAborted:
		fmt.Fprintf(&b, "Aborted: %v\n", r.Err)
		fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	default:
		fmt.Fprintf(&b, "State: %s\n", r.State)
	}
	return b.String()
}
