package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout shared by every pipeline stage.
type Paths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	LogsDir   string `toml:"logs_dir"`
	ToolsDir  string `toml:"tools_dir"`
	StateDir  string `toml:"state_dir"`
}

// Run contains the default parameters for a pipeline run. Command-line flags
// take precedence over these values.
type Run struct {
	Language      string `toml:"language"`
	ModelName     string `toml:"model_name"`
	Device        string `toml:"device"`
	HalfPrecision bool   `toml:"half_precision"`
	SourceFile    string `toml:"source_file"`
}

// Python describes the interpreter the stage scripts run under and the
// optional packages the dependency guard keeps installed.
type Python struct {
	Interpreter    string   `toml:"interpreter"`
	Packages       []string `toml:"packages"`
	InstallTimeout int      `toml:"install_timeout"`
}

// StageCommand is the external invocation for a single pipeline stage.
// Args may contain placeholders such as {python}, {input}, {output},
// {language}, {model}, {device}, {half}, {logs} and {source}.
type StageCommand struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	Artifact string   `toml:"artifact"`
}

// Stages holds the command for every pipeline stage.
type Stages struct {
	ManifestPath   string       `toml:"manifest_path"`
	Separation     StageCommand `toml:"separation"`
	Slicing        StageCommand `toml:"slicing"`
	Transcription  StageCommand `toml:"transcription"`
	Formatting     StageCommand `toml:"formatting"`
	Training       StageCommand `toml:"training"`
	PostProcessing StageCommand `toml:"post_processing"`
}

// FFmpeg contains the transcoder settings used for the separation fallback.
type FFmpeg struct {
	Binary     string `toml:"binary"`
	SampleRate int    `toml:"sample_rate"`
	Channels   int    `toml:"channels"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	RunFailed      bool   `toml:"run_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics configures the Prometheus textfile written after each run.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for voxclone.
//
// Configuration sections by subsystem:
//   - Paths: raw input, stage output, model logs, tool checkout, and state
//   - Run: default language, model name, and device selection
//   - Python: interpreter and optional packages for the stage scripts
//   - Stages: external command for each of the six pipeline stages
//   - FFmpeg: transcoder used when separation yields no vocal track
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus textfile for node_exporter
type Config struct {
	Paths         Paths         `toml:"paths"`
	Run           Run           `toml:"run"`
	Python        Python        `toml:"python"`
	Stages        Stages        `toml:"stages"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voxclone/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/voxclone/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voxclone.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the root directories the CLI needs before a run.
// The stage directories beneath output_dir are owned by the workspace manager
// and are not touched here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.LogsDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used by the separation fallback.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.FFmpeg.Binary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// PythonBinary returns the interpreter the stage scripts run under.
func (c *Config) PythonBinary() string {
	if bin := strings.TrimSpace(c.Python.Interpreter); bin != "" {
		return bin
	}
	return defaultPythonInterpreter
}

// JournalPath returns the location of the run journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath returns the location of the workspace lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "workspace.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// StageCommands returns the configured command for each stage keyed by the
// stage's config section name.
func (c *Config) StageCommands() map[string]StageCommand {
	return map[string]StageCommand{
		"separation":      c.Stages.Separation,
		"slicing":         c.Stages.Slicing,
		"transcription":   c.Stages.Transcription,
		"formatting":      c.Stages.Formatting,
		"training":        c.Stages.Training,
		"post_processing": c.Stages.PostProcessing,
	}
}
