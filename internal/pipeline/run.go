package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"voxclone/internal/language"
	"voxclone/internal/services"
	"voxclone/internal/workspace"
)

// RunOptions are the caller-supplied parameters of a run before validation.
type RunOptions struct {
	Language       string
	Model          string
	Source         string
	Device         string
	HalfPrecision  bool
	SkipSeparation bool
	NonInteractive bool
}

// Run is the validated, immutable description of one pipeline invocation.
type Run struct {
	ID             string
	Language       language.Code
	Model          string
	Source         string
	Device         string
	HalfPrecision  bool
	SkipSeparation bool
	NonInteractive bool
	Started        time.Time
}

// NewRun validates opts and assigns the run a fresh ID. Every error wraps
// services.ErrValidation.
func NewRun(opts RunOptions) (Run, error) {
	lang, err := language.Parse(opts.Language)
	if err != nil {
		return Run{}, services.Wrap(services.ErrValidation, "", "language", "", err)
	}
	model := opts.Model
	if err := workspace.ValidateModelName(model); err != nil {
		return Run{}, err
	}
	device := strings.ToLower(strings.TrimSpace(opts.Device))
	switch device {
	case "":
		device = "cuda"
	case "cuda", "cpu":
	default:
		return Run{}, services.Wrap(services.ErrValidation, "", "device", "must be cuda or cpu, got "+opts.Device, nil)
	}
	return Run{
		ID:             uuid.NewString(),
		Language:       lang,
		Model:          model,
		Source:         strings.TrimSpace(opts.Source),
		Device:         device,
		HalfPrecision:  opts.HalfPrecision && device == "cuda",
		SkipSeparation: opts.SkipSeparation,
		NonInteractive: opts.NonInteractive,
		Started:        time.Now(),
	}, nil
}

// ShortID returns the first block of the run ID for display.
func (r Run) ShortID() string {
	if i := strings.IndexByte(r.ID, '-'); i > 0 {
		return r.ID[:i]
	}
	return r.ID
}
