package config

import (
	"errors"
	"fmt"
	"strings"

	"voxclone/internal/language"
	"voxclone/internal/workspace"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"python.install_timeout":        c.Python.InstallTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be 0 or greater")
	}
	if c.Metrics.Textfile != "" && !strings.HasSuffix(c.Metrics.Textfile, ".prom") {
		return fmt.Errorf("metrics.textfile: %q must end in .prom", c.Metrics.Textfile)
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	required := []struct {
		key   string
		value string
	}{
		{"paths.input_dir", c.Paths.InputDir},
		{"paths.output_dir", c.Paths.OutputDir},
		{"paths.logs_dir", c.Paths.LogsDir},
		{"paths.tools_dir", c.Paths.ToolsDir},
	}
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			return fmt.Errorf("%s must be set", entry.key)
		}
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Language != "" {
		if _, err := language.Parse(c.Run.Language); err != nil {
			return fmt.Errorf("run.language: %w", err)
		}
	}
	if c.Run.ModelName != "" {
		if err := workspace.ValidateModelName(c.Run.ModelName); err != nil {
			return fmt.Errorf("run.model_name: %w", err)
		}
	}
	switch c.Run.Device {
	case "cuda", "cpu":
	default:
		return fmt.Errorf("run.device: unsupported value %q (expected cuda or cpu)", c.Run.Device)
	}
	if strings.ContainsAny(c.Run.SourceFile, `/\`) {
		return fmt.Errorf("run.source_file: %q must be a bare file name inside paths.input_dir", c.Run.SourceFile)
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, cmd := range c.StageCommands() {
		if strings.TrimSpace(cmd.Command) == "" {
			return fmt.Errorf("stages.%s.command must be set", name)
		}
		if strings.ContainsAny(cmd.Artifact, `/\`) {
			return fmt.Errorf("stages.%s.artifact: %q must be a file name or glob, not a path", name, cmd.Artifact)
		}
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.SampleRate <= 0 {
		return errors.New("ffmpeg.sample_rate must be positive")
	}
	if c.FFmpeg.Channels != 1 && c.FFmpeg.Channels != 2 {
		return fmt.Errorf("ffmpeg.channels: unsupported value %d (expected 1 or 2)", c.FFmpeg.Channels)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
