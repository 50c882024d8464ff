package stageexec

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxclone/internal/stage"
	"voxclone/internal/workspace"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func newRunContext(t *testing.T) stage.RunContext {
	t.Helper()
	root := t.TempDir()
	layout, err := workspace.NewLayout(filepath.Join(root, "input"), filepath.Join(root, "output"), filepath.Join(root, "logs"), "my-voice")
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return stage.RunContext{RunID: "run-1", Language: "en", Model: "my-voice", Device: "cpu", Layout: layout}
}

func newTestExecutor(t *testing.T) (*Executor, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	exec := New(t.TempDir(), logger)
	exec.KillGrace = time.Second
	return exec, &buf
}

func TestRunSuccessWritesIntoOutputSlot(t *testing.T) {
	exec, logs := newTestExecutor(t)
	rc := newRunContext(t)
	stub := writeStub(t, exec.WorkDir, "separate", `echo "separating $VC_LANG"; echo data > "$1/vocal.wav"`)
	def := stage.Definition{Name: stage.Separation, Command: stub, Args: []string{"{output}"}, Output: stage.SlotSeparation}

	res := exec.Run(context.Background(), def, rc)
	if !res.OK() || res.ExitCode != 0 {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Stage != stage.Separation || res.Elapsed <= 0 {
		t.Fatalf("unexpected result metadata %+v", res)
	}
	if _, err := os.Stat(filepath.Join(rc.Layout.SeparationDir, "vocal.wav")); err != nil {
		t.Fatalf("expected artifact in separation dir: %v", err)
	}
	out := logs.String()
	for _, want := range []string{`"event_type":"stage_start"`, `"line":"separating en"`, `"event_type":"stage_complete"`, `"stage":"separation"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in logs:\n%s", want, out)
		}
	}
}

func TestRunNonZeroExitIsFailureWithCode(t *testing.T) {
	exec, logs := newTestExecutor(t)
	stub := writeStub(t, exec.WorkDir, "train", `echo "cuda out of memory" >&2; exit 3`)
	def := stage.Definition{Name: stage.Training, Command: stub, Output: stage.SlotModelLogs}

	res := exec.Run(context.Background(), def, newRunContext(t))
	if res.Outcome != stage.Failure || res.ExitCode != 3 {
		t.Fatalf("expected Failure(3), got %+v", res)
	}
	if !strings.Contains(logs.String(), `"stream":"stderr"`) {
		t.Fatalf("expected stderr passthrough in logs:\n%s", logs.String())
	}
}

func TestRunMissingExecutableIsNotFound(t *testing.T) {
	exec, _ := newTestExecutor(t)
	def := stage.Definition{Name: stage.Slicing, Command: "/definitely/not/here", Output: stage.SlotSliced}

	res := exec.Run(context.Background(), def, newRunContext(t))
	if res.Outcome != stage.NotFound || res.ExitCode != stage.ExitNotFound {
		t.Fatalf("expected NotFound, got %+v", res)
	}
}

func TestRunMissingScriptIsNotFound(t *testing.T) {
	exec, _ := newTestExecutor(t)
	def := stage.Definition{Name: stage.Transcription, Command: "sh", Args: []string{"tools/asr/missing.py"}, Output: stage.SlotTranscription}

	res := exec.Run(context.Background(), def, newRunContext(t))
	if res.Outcome != stage.NotFound {
		t.Fatalf("expected NotFound for missing script, got %+v", res)
	}
}

func TestRunRelativeScriptResolvesAgainstWorkDir(t *testing.T) {
	exec, _ := newTestExecutor(t)
	if err := os.MkdirAll(filepath.Join(exec.WorkDir, "tools"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeStub(t, filepath.Join(exec.WorkDir, "tools"), "slice.sh", `touch "$1/a.wav"`)
	rc := newRunContext(t)
	def := stage.Definition{Name: stage.Slicing, Command: "sh", Args: []string{"tools/slice.sh", "{output}"}, Output: stage.SlotSliced}

	res := exec.Run(context.Background(), def, rc)
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(rc.Layout.SlicedDir, "a.wav")); err != nil {
		t.Fatalf("expected sliced artifact: %v", err)
	}
}

func TestRunCancellationReportsInterrupted(t *testing.T) {
	exec, _ := newTestExecutor(t)
	stub := writeStub(t, exec.WorkDir, "slow", `sleep 30`)
	def := stage.Definition{Name: stage.Training, Command: stub, Output: stage.SlotModelLogs}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := exec.Run(ctx, def, newRunContext(t))
	if res.ExitCode != ExitInterrupted || res.Outcome != stage.Failure {
		t.Fatalf("expected interrupted failure, got %+v", res)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("cancelled stage was not stopped promptly")
	}
}

func TestExternalStageDelegates(t *testing.T) {
	exec, _ := newTestExecutor(t)
	stub := writeStub(t, exec.WorkDir, "ok", `exit 0`)
	stages := Stages([]stage.Definition{{Name: stage.Formatting, Command: stub, Output: stage.SlotModelLogs}}, exec)
	if len(stages) != 1 || stages[0].Name() != stage.Formatting {
		t.Fatalf("unexpected stages %v", stages)
	}
	if res := stages[0].Execute(context.Background(), newRunContext(t)); !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
}
