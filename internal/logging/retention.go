package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunLogPattern matches run logs and their rotated backups inside a model
// directory.
const RunLogPattern = "voxclone-*.log"

// CleanupRunLogs removes run logs older than retentionDays from every model
// directory under logsDir and returns how many were removed. The active log is
// never removed. A retentionDays value of 0 disables pruning.
func CleanupRunLogs(logger *slog.Logger, logsDir string, retentionDays int, active string) int {
	logsDir = strings.TrimSpace(logsDir)
	if retentionDays <= 0 || logsDir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(logsDir, "*", RunLogPattern))
	if err != nil {
		return 0
	}
	if active != "" {
		if abs, err := filepath.Abs(active); err == nil {
			active = abs
		}
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if path == active {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log retention failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and logs_dir ownership"),
				String(FieldImpact, "old run log remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("run log pruned",
				String("path", path),
				String(FieldModel, filepath.Base(filepath.Dir(path))),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}
