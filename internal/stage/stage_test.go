package stage_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"voxclone/internal/config"
	"voxclone/internal/stage"
	"voxclone/internal/workspace"
)

func testLayout(t *testing.T) workspace.Layout {
	t.Helper()
	layout, err := workspace.NewLayout("/w/input", "/w/output", "/w/logs", "my-voice")
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return layout
}

func TestDefinitionsFollowFixedOrder(t *testing.T) {
	cfg := config.Default()
	defs, err := stage.Definitions(&cfg)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(defs) != 6 {
		t.Fatalf("expected 6 definitions, got %d", len(defs))
	}
	for i, def := range defs {
		if def.Name != stage.Order[i] {
			t.Fatalf("definition %d is %s, want %s", i, def.Name, stage.Order[i])
		}
		if def.Ordinal() != i+1 {
			t.Fatalf("%s ordinal %d, want %d", def.Name, def.Ordinal(), i+1)
		}
		if def.Fatal != (def.Name != stage.Separation) {
			t.Fatalf("%s fatal=%v", def.Name, def.Fatal)
		}
	}
	// each stage reads the previous stage's output
	for i := 1; i < 4; i++ {
		if defs[i].Input != defs[i-1].Output {
			t.Fatalf("%s input %s does not follow %s output %s", defs[i].Name, defs[i].Input, defs[i-1].Name, defs[i-1].Output)
		}
	}
}

func TestExpandSubstitutesRunParameters(t *testing.T) {
	cfg := config.Default()
	defs, err := stage.Definitions(&cfg)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	rc := stage.RunContext{
		Language: "en",
		Model:    "my-voice",
		Device:   "cuda",
		Python:   "/opt/venv/bin/python",
		Layout:   testLayout(t),
	}

	name, args := defs[2].Expand(rc)
	if name != "/opt/venv/bin/python" {
		t.Fatalf("unexpected executable %q", name)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /w/output/sliced", "-o /w/output/transcription", "-l en"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("transcription args %q missing %q", joined, want)
		}
	}

	_, args = defs[4].Expand(rc)
	if !slices.Contains(args, "-n") || !slices.Contains(args, "my-voice") {
		t.Fatalf("training args missing model flag: %v", args)
	}
	// the template itself must not be mutated
	if !slices.Contains(defs[4].Args, "{model}") {
		t.Fatalf("template mutated: %v", defs[4].Args)
	}
}

func TestExpandLeavesUnknownPlaceholders(t *testing.T) {
	def := stage.Definition{Name: stage.Training, Command: "train", Args: []string{"{epochs}", "{model}"}, Output: stage.SlotModelLogs}
	_, args := def.Expand(stage.RunContext{Model: "a", Layout: testLayout(t)})
	if args[0] != "{epochs}" || args[1] != "a" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestRunContextEnv(t *testing.T) {
	rc := stage.RunContext{Language: "zh", Model: "bob", Source: "/in/audio.mp3", Layout: testLayout(t)}
	env := rc.Env()
	for _, want := range []string{"VC_LANG=zh", "VC_ROLE=bob", "VC_AUDIO=/in/audio.mp3", "PYTHONUNBUFFERED=1"} {
		if !slices.Contains(env, want) {
			t.Fatalf("env %v missing %q", env, want)
		}
	}
}

func TestManifestOverridesDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	manifest := `stages:
  - name: training
    command: "{python}"
    args: ["s2_train.py", "--exp", "{model}"]
  - name: slicing
    artifact: "*.flac"
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	cfg := config.Default()
	cfg.Stages.ManifestPath = path

	defs, err := stage.Definitions(&cfg)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if got := strings.Join(defs[4].Args, " "); got != "s2_train.py --exp {model}" {
		t.Fatalf("training args not overridden: %q", got)
	}
	if defs[1].Artifact != "*.flac" {
		t.Fatalf("slicing artifact not overridden: %q", defs[1].Artifact)
	}
	if defs[1].Command != cfg.Stages.Slicing.Command {
		t.Fatalf("slicing command should be unchanged, got %q", defs[1].Command)
	}
}

func TestManifestRejectsUnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	if err := os.WriteFile(path, []byte("stages:\n  - name: mastering\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := stage.LoadManifest(path); err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestResultString(t *testing.T) {
	r := stage.Result{Stage: stage.PostProcessing, Outcome: stage.Failure, ExitCode: 3}
	if r.String() != "Post-processing: failed (exit 3)" {
		t.Fatalf("unexpected string %q", r.String())
	}
	r = stage.Result{Stage: stage.Separation, Outcome: stage.Success, FallbackUsed: true}
	if !r.OK() || !strings.Contains(r.String(), "fallback") {
		t.Fatalf("unexpected fallback result %q", r.String())
	}
}
