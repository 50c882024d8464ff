package pipeline

import (
	"context"
	"errors"
	"fmt"

	"voxclone/internal/services"
	"voxclone/internal/stage"
)

// Process exit codes for failures that happen outside a stage process.
const (
	ExitSuccess         = 0
	ExitGeneric         = 1
	ExitValidation      = 2
	ExitEnvironment     = 3
	ExitWorkspace       = 4
	ExitFallback        = 5
	ExitMissingArtifact = 6
	ExitLocked          = 7
	ExitInterrupted     = 130
)

// AbortError explains why a run stopped before completing.
type AbortError struct {
	State State
	Stage stage.Name
	Code  int
	Err   error
}

func (e *AbortError) Error() string {
	where := string(e.State)
	if e.Stage != "" {
		where = fmt.Sprintf("stage %d (%s)", e.Stage.Ordinal(), e.Stage.Label())
	}
	if e.Err == nil {
		return fmt.Sprintf("run aborted during %s with exit code %d", where, e.Code)
	}
	return fmt.Sprintf("run aborted during %s with exit code %d: %v", where, e.Code, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// ExitCode maps err to the process exit status. A stage failure keeps the
// stage's own code; other failures use the sentinel codes above.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var abort *AbortError
	if errors.As(err, &abort) && abort.Code != 0 {
		return abort.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		return ExitValidation
	case errors.Is(err, services.ErrEnvironment):
		return ExitEnvironment
	case errors.Is(err, services.ErrWorkspace):
		return ExitWorkspace
	case errors.Is(err, services.ErrFallbackUnrecoverable):
		return ExitFallback
	case errors.Is(err, services.ErrMissingArtifact):
		return ExitMissingArtifact
	case errors.Is(err, services.ErrLocked):
		return ExitLocked
	default:
		return ExitGeneric
	}
}
