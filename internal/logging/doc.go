// Package logging assembles structured slog loggers and formatting helpers used
// across voxclone.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with the run ID, model name, and current stage. The package
// also provides a no-op logger for tests, a tee handler for per-run log files,
// and retention cleanup for old run logs.
package logging
