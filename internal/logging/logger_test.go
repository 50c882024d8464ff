package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxclone/internal/logging"
	"voxclone/internal/services"
)

func tempLogPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".log")
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := tempLogPath(t, "console")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := tempLogPath(t, "console")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsSubjectAndFields(t *testing.T) {
	logPath := tempLogPath(t, "console")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithModel(services.WithStage(context.Background(), "slicing"), "alice")
	stageLogger := logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline"))
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int(logging.FieldExitCode, 0),
		logging.String("output_dir", "/tmp/out"),
	)

	content := readLog(t, logPath)
	for _, want := range []string{"[pipeline]", "alice (slicing)", "stage completed", "- Event: stage_complete", "- Exit Code: 0", "+ 1 more field hidden"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in console output, got %q", want, content)
		}
	}
}

func TestJSONLoggerWritesStructuredFields(t *testing.T) {
	logPath := tempLogPath(t, "json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WithRunID(logger, "run-123").Warn("fallback applied",
		logging.String("source", "audio.mp3"),
		logging.Duration("elapsed", 1500*time.Millisecond),
		logging.Error(errors.New("no vocal track")),
	)

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected lower-case level, got %v", entry["level"])
	}
	if entry["run_id"] != "run-123" {
		t.Fatalf("expected run_id, got %v", entry["run_id"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if entry["elapsed"] != 1.5 {
		t.Fatalf("expected elapsed in seconds, got %v", entry["elapsed"])
	}
	if entry["error"] != "no vocal track" {
		t.Fatalf("expected error string, got %v", entry["error"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestOpenRunLogTeesRecords(t *testing.T) {
	dir := t.TempDir()
	runLog, err := logging.OpenRunLog(dir, "abc", "info")
	if err != nil {
		t.Fatalf("OpenRunLog: %v", err)
	}
	defer runLog.Close()

	logger := logging.TeeLogger(logging.NewNop(), runLog.Handler)
	logger.Info("stage started", logging.String(logging.FieldStage, "separation"))

	if runLog.Path != filepath.Join(dir, "voxclone-abc.log") {
		t.Fatalf("unexpected run log path %q", runLog.Path)
	}
	if content := readLog(t, runLog.Path); !strings.Contains(content, `"stage":"separation"`) {
		t.Fatalf("expected stage in run log, got %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := tempLogPath(t, "json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "package install failed", "dependency_warning")

	content := readLog(t, logPath)
	for _, key := range []string{`"event_type":"dependency_warning"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(content, key) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	logPath := tempLogPath(t, "json")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.ErrorWithContext(logger, "run aborted", "run_aborted",
		logging.String(logging.FieldErrorHint, "free disk space"),
	)

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry[logging.FieldErrorHint] != "free disk space" {
		t.Fatalf("caller hint replaced: %v", entry[logging.FieldErrorHint])
	}
	if entry[logging.FieldEventType] != "run_aborted" {
		t.Fatalf("expected event_type, got %v", entry[logging.FieldEventType])
	}
	if _, ok := entry[logging.FieldImpact]; ok {
		t.Fatalf("errors carry no impact default, got %v", entry)
	}
}
