package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRun()
	c.normalizePython()
	if err := c.normalizeStages(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogsDir, err = expandPath(c.Paths.LogsDir); err != nil {
		return fmt.Errorf("paths.logs_dir: %w", err)
	}
	if c.Paths.ToolsDir, err = expandPath(c.Paths.ToolsDir); err != nil {
		return fmt.Errorf("paths.tools_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile); c.Metrics.Textfile != "" {
		if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeRun() {
	if c.Run.Language == "" {
		if value, ok := os.LookupEnv("VC_LANG"); ok {
			c.Run.Language = value
		}
	}
	if c.Run.ModelName == "" {
		if value, ok := os.LookupEnv("VC_ROLE"); ok {
			c.Run.ModelName = value
		}
	}
	if c.Run.SourceFile == "" {
		if value, ok := os.LookupEnv("VC_AUDIO"); ok {
			c.Run.SourceFile = value
		}
	}
	c.Run.Language = strings.ToLower(strings.TrimSpace(c.Run.Language))
	c.Run.ModelName = strings.TrimSpace(c.Run.ModelName)
	c.Run.SourceFile = strings.TrimSpace(c.Run.SourceFile)
	c.Run.Device = strings.ToLower(strings.TrimSpace(c.Run.Device))
	if c.Run.Device == "" {
		c.Run.Device = defaultDevice
	}
}

func (c *Config) normalizePython() {
	c.Python.Interpreter = strings.TrimSpace(c.Python.Interpreter)
	if c.Python.Interpreter == "" {
		c.Python.Interpreter = defaultPythonInterpreter
	}
	packages := make([]string, 0, len(c.Python.Packages))
	seen := make(map[string]struct{}, len(c.Python.Packages))
	for _, pkg := range c.Python.Packages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}
		packages = append(packages, pkg)
	}
	c.Python.Packages = packages
	if c.Python.InstallTimeout == 0 {
		c.Python.InstallTimeout = defaultPythonInstallTimeout
	}
}

func (c *Config) normalizeStages() error {
	if strings.TrimSpace(c.Stages.ManifestPath) != "" {
		var err error
		if c.Stages.ManifestPath, err = expandPath(c.Stages.ManifestPath); err != nil {
			return fmt.Errorf("stages.manifest_path: %w", err)
		}
	}
	defaults := defaultStages()
	fill := func(cmd *StageCommand, fallback StageCommand) {
		cmd.Command = strings.TrimSpace(cmd.Command)
		cmd.Artifact = strings.TrimSpace(cmd.Artifact)
		if cmd.Command == "" {
			cmd.Command = fallback.Command
			if len(cmd.Args) == 0 {
				cmd.Args = fallback.Args
			}
		}
	}
	fill(&c.Stages.Separation, defaults.Separation)
	fill(&c.Stages.Slicing, defaults.Slicing)
	fill(&c.Stages.Transcription, defaults.Transcription)
	fill(&c.Stages.Formatting, defaults.Formatting)
	fill(&c.Stages.Training, defaults.Training)
	fill(&c.Stages.PostProcessing, defaults.PostProcessing)
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	if c.FFmpeg.SampleRate == 0 {
		c.FFmpeg.SampleRate = defaultFFmpegSampleRate
	}
	if c.FFmpeg.Channels == 0 {
		c.FFmpeg.Channels = defaultFFmpegChannels
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VOXCLONE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
