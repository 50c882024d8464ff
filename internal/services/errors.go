package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrEnvironment           = errors.New("environment error")
	ErrWorkspace             = errors.New("workspace error")
	ErrDependency            = errors.New("dependency warning")
	ErrStageFailure          = errors.New("stage failure")
	ErrFallbackUnrecoverable = errors.New("fallback unrecoverable")
	ErrMissingArtifact       = errors.New("missing artifact")
	ErrLocked                = errors.New("workspace locked")
	ErrConfiguration         = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later exit-code classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Fatal reports whether err aborts a pipeline run. Only dependency warnings
// are advisory.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDependency)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
