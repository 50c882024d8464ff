package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"voxclone/internal/services"
)

const (
	SeparationDirName    = "separation"
	SlicedDirName        = "sliced"
	TranscriptionDirName = "transcription"
)

// Layout is the resolved set of directories for one model.
type Layout struct {
	InputDir         string
	SeparationDir    string
	SlicedDir        string
	TranscriptionDir string
	LogsDir          string
	ModelLogDir      string
}

// NewLayout derives the workspace directories for model. outputDir holds the
// transient stage directories and logsDir the per-model directories.
func NewLayout(inputDir, outputDir, logsDir, model string) (Layout, error) {
	if err := ValidateModelName(model); err != nil {
		return Layout{}, err
	}
	for name, dir := range map[string]string{"input": inputDir, "output": outputDir, "logs": logsDir} {
		if strings.TrimSpace(dir) == "" {
			return Layout{}, services.Wrap(services.ErrValidation, "", "layout", name+" directory not configured", nil)
		}
	}
	return Layout{
		InputDir:         filepath.Clean(inputDir),
		SeparationDir:    filepath.Join(outputDir, SeparationDirName),
		SlicedDir:        filepath.Join(outputDir, SlicedDirName),
		TranscriptionDir: filepath.Join(outputDir, TranscriptionDirName),
		LogsDir:          filepath.Clean(logsDir),
		ModelLogDir:      filepath.Join(logsDir, model),
	}, nil
}

// Transient returns the directories that are emptied before every run, in
// stage order.
func (l Layout) Transient() []string {
	return []string{l.SeparationDir, l.SlicedDir, l.TranscriptionDir}
}

// EnsureModelLogDir creates the per-model log directory without touching any
// existing contents.
func (l Layout) EnsureModelLogDir() error {
	if err := os.MkdirAll(l.ModelLogDir, 0o755); err != nil {
		return services.Wrap(services.ErrWorkspace, "", "ensure model log dir", l.ModelLogDir, err)
	}
	return nil
}

// ValidateModelName rejects names that are empty or would escape the logs
// directory. Letters in any script, digits, '.', '_' and '-' are allowed.
func ValidateModelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return services.Wrap(services.ErrValidation, "", "validate model name", "model name is empty", nil)
	}
	if name != strings.TrimSpace(name) {
		return services.Wrap(services.ErrValidation, "", "validate model name", fmt.Sprintf("model name %q has surrounding whitespace", name), nil)
	}
	if name == "." || name == ".." {
		return services.Wrap(services.ErrValidation, "", "validate model name", fmt.Sprintf("model name %q is reserved", name), nil)
	}
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '_', r == '-':
		default:
			return services.Wrap(services.ErrValidation, "", "validate model name", fmt.Sprintf("model name %q contains %q", name, r), nil)
		}
	}
	return nil
}
