package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"voxclone/internal/config"
	"voxclone/internal/deps"
	"voxclone/internal/fallback"
	"voxclone/internal/services"
	"voxclone/internal/stage"
	"voxclone/internal/workspace"
)

type recorder struct {
	calls []string
}

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

type fakeStage struct {
	name    stage.Name
	outcome stage.Outcome
	code    int
	err     error
	rec     *recorder
	hook    func(rc stage.RunContext)
}

func (f *fakeStage) Name() stage.Name { return f.name }

func (f *fakeStage) Execute(_ context.Context, rc stage.RunContext) stage.Result {
	f.rec.add(string(f.name))
	if f.hook != nil {
		f.hook(rc)
	}
	outcome := f.outcome
	if outcome == "" {
		outcome = stage.Success
	}
	return stage.Result{Stage: f.name, Outcome: outcome, ExitCode: f.code, Err: f.err, Started: time.Now()}
}

type fakeResolver struct {
	outcome fallback.Outcome
	err     error
	rec     *recorder
}

func (f *fakeResolver) Resolve(_ context.Context, expected, _ string) (fallback.Outcome, error) {
	f.rec.add("fallback")
	if _, err := os.Stat(expected); err == nil {
		return fallback.OK, nil
	}
	if f.outcome == fallback.Applied {
		_ = os.WriteFile(expected, []byte("pcm"), 0o644)
	}
	return f.outcome, f.err
}

type fakeGuard struct {
	reports []deps.Report
}

func (f *fakeGuard) EnsureAll(context.Context, []string) []deps.Report { return f.reports }

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Errorf("mkdir %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Errorf("write %s: %v", path, err)
	}
}

// artifactHooks makes each fake stage write the artifact its contract expects.
func artifactHooks(t *testing.T) map[stage.Name]func(stage.RunContext) {
	return map[stage.Name]func(stage.RunContext){
		stage.Separation:     func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.SeparationDir, "vocal_main.wav")) },
		stage.Slicing:        func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.SlicedDir, "vocal.wav_0001.wav")) },
		stage.Transcription:  func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.TranscriptionDir, "sliced.list")) },
		stage.Formatting:     func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.ModelLogDir, "2-name2text.txt")) },
		stage.Training:       func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.ModelLogDir, "model.ckpt")) },
		stage.PostProcessing: func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.ModelLogDir, "model.pth")) },
	}
}

type harness struct {
	orch     *Orchestrator
	rec      *recorder
	stages   map[stage.Name]*fakeStage
	resolver *fakeResolver
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	defs, err := stage.Definitions(&cfg)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}

	rec := &recorder{}
	hooks := artifactHooks(t)
	h := &harness{rec: rec, stages: map[stage.Name]*fakeStage{}, root: root}
	stages := make([]stage.Stage, 0, len(stage.Order))
	for _, name := range stage.Order {
		fs := &fakeStage{name: name, rec: rec, hook: hooks[name]}
		h.stages[name] = fs
		stages = append(stages, fs)
	}
	h.resolver = &fakeResolver{outcome: fallback.Unrecoverable, err: services.Wrap(services.ErrFallbackUnrecoverable, "separation", "fallback", "no source", nil), rec: rec}

	input := filepath.Join(root, "input")
	touch(t, filepath.Join(input, "audio.mp3"))
	h.orch = &Orchestrator{
		Paths: Paths{
			InputDir:  input,
			OutputDir: filepath.Join(root, "output"),
			LogsDir:   filepath.Join(root, "logs"),
			ToolsDir:  filepath.Join(root, "tools"),
			LockPath:  filepath.Join(root, "state", "workspace.lock"),
		},
		Python:      "python",
		Packages:    []string{"jieba_fast"},
		Definitions: defs,
		Stages:      stages,
		Guard:       &fakeGuard{},
		Resolver:    h.resolver,
	}
	return h
}

func newTestRun(t *testing.T, opts RunOptions) Run {
	t.Helper()
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Model == "" {
		opts.Model = "my-voice"
	}
	run, err := NewRun(opts)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	return run
}

func stageCalls(names ...stage.Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

func TestExecuteCompletesAllStagesInOrder(t *testing.T) {
	h := newHarness(t)
	run := newTestRun(t, RunOptions{})

	report, err := h.orch.Execute(context.Background(), run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"separation", "fallback", "slicing", "transcription", "formatting", "training", "post_processing"}
	if !reflect.DeepEqual(h.rec.calls, want) {
		t.Fatalf("calls = %v, want %v", h.rec.calls, want)
	}
	if report.State != StateCompleted || report.ExitCode != 0 {
		t.Fatalf("unexpected report state=%s exit=%d", report.State, report.ExitCode)
	}
	wantStates := []State{StateInit, StateGuarded, StateCleaned, StateRunning, StateCompleted}
	if !reflect.DeepEqual(report.Transitions, wantStates) {
		t.Fatalf("transitions = %v, want %v", report.Transitions, wantStates)
	}
	if len(report.Results) != len(stage.Order) || report.FallbackApplied {
		t.Fatalf("unexpected results %+v fallback=%v", report.Results, report.FallbackApplied)
	}
	vocal := filepath.Join(h.root, "output", "separation", "vocal.wav")
	if _, err := os.Stat(vocal); err != nil {
		t.Fatalf("expected promoted vocal.wav: %v", err)
	}
	manifest, err := ReadRunManifest(report.ModelLogDir)
	if err != nil {
		t.Fatalf("ReadRunManifest: %v", err)
	}
	if manifest.Role != "my-voice" || manifest.Language != "en" || manifest.RunID != run.ID {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if !strings.HasSuffix(manifest.AudioPath, "audio.mp3") {
		t.Fatalf("expected audio.mp3 source, got %q", manifest.AudioPath)
	}
}

func TestExecuteResetsTransientDirsButKeepsModelDir(t *testing.T) {
	h := newHarness(t)
	stale := filepath.Join(h.root, "output", "sliced", "stale_0001.wav")
	touch(t, stale)
	keep := filepath.Join(h.root, "logs", "my-voice", "previous.ckpt")
	touch(t, keep)

	h.stages[stage.Separation].hook = func(rc stage.RunContext) {
		for _, dir := range rc.Layout.Transient() {
			empty, err := workspace.IsEmpty(dir)
			if err != nil || !empty {
				t.Errorf("expected %s empty before separation (err=%v)", dir, err)
			}
		}
		touch(t, filepath.Join(rc.Layout.SeparationDir, "vocal.wav"))
	}

	if _, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{})); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale slice removed, got %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("expected model dir contents kept: %v", err)
	}
}

func TestExecuteFailsFastWithStageExitCode(t *testing.T) {
	for i, name := range stage.Order[1:] {
		t.Run(string(name), func(t *testing.T) {
			h := newHarness(t)
			code := 20 + i
			h.stages[name].outcome = stage.Failure
			h.stages[name].code = code

			report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
			if err == nil {
				t.Fatal("expected abort")
			}
			if got := ExitCode(err); got != code {
				t.Fatalf("ExitCode = %d, want %d", got, code)
			}
			var abort *AbortError
			if !errors.As(err, &abort) || abort.Stage != name {
				t.Fatalf("expected AbortError for %s, got %v", name, err)
			}
			if !errors.Is(err, services.ErrStageFailure) {
				t.Fatalf("expected ErrStageFailure, got %v", err)
			}
			if report.State != StateAborted || report.ExitCode != code {
				t.Fatalf("unexpected report state=%s exit=%d", report.State, report.ExitCode)
			}
			last := h.rec.calls[len(h.rec.calls)-1]
			if last != string(name) {
				t.Fatalf("expected %s to be the last call, got %v", name, h.rec.calls)
			}
			for _, later := range stage.Order[name.Ordinal():] {
				for _, call := range h.rec.calls {
					if call == string(later) {
						t.Fatalf("stage %s ran after %s failed", later, name)
					}
				}
			}
			if !strings.Contains(report.Summary(), name.Label()) {
				t.Fatalf("summary does not name the failed stage:\n%s", report.Summary())
			}
		})
	}
}

func TestExecuteNotFoundPropagates127(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Transcription].outcome = stage.NotFound
	h.stages[stage.Transcription].code = stage.ExitNotFound

	_, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != stage.ExitNotFound {
		t.Fatalf("ExitCode = %d, want %d (err=%v)", got, stage.ExitNotFound, err)
	}
}

func TestExecuteMissingArtifactAborts(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Slicing].hook = nil

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if !errors.Is(err, services.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
	if report.ExitCode != ExitMissingArtifact {
		t.Fatalf("exit = %d, want %d", report.ExitCode, ExitMissingArtifact)
	}
	want := stageCalls(stage.Separation)
	want = append(want, "fallback", string(stage.Slicing))
	if !reflect.DeepEqual(h.rec.calls, want) {
		t.Fatalf("calls = %v, want %v", h.rec.calls, want)
	}
}

func TestSeparationFailureAppliesFallback(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Separation].outcome = stage.Failure
	h.stages[stage.Separation].code = 1
	h.stages[stage.Separation].hook = nil
	h.resolver.outcome = fallback.Applied
	h.resolver.err = nil

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !report.FallbackApplied {
		t.Fatal("expected fallback to be recorded")
	}
	sep, ok := report.Result(stage.Separation)
	if !ok || !sep.FallbackUsed || !sep.OK() {
		t.Fatalf("unexpected separation result %+v", sep)
	}
	if sep.ExitCode != 0 || sep.Err != nil {
		t.Fatalf("fallback result kept failure details: exit=%d err=%v", sep.ExitCode, sep.Err)
	}
	if h.rec.calls[1] != "fallback" || h.rec.calls[2] != string(stage.Slicing) {
		t.Fatalf("fallback must run before slicing, got %v", h.rec.calls)
	}
}

func TestSeparationFailureWithVocalTrackContinues(t *testing.T) {
	h := newHarness(t)
	sep := h.stages[stage.Separation]
	sep.outcome = stage.Failure
	sep.code = 2
	sep.err = errors.New("exit status 2")
	sep.hook = func(rc stage.RunContext) { touch(t, filepath.Join(rc.Layout.SeparationDir, "vocal.wav")) }

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.FallbackApplied {
		t.Fatal("existing vocal track must not count as a fallback")
	}
	res, ok := report.Result(stage.Separation)
	if !ok || !res.OK() || res.FallbackUsed {
		t.Fatalf("unexpected separation result %+v", res)
	}
	if res.ExitCode != 0 || res.Err != nil {
		t.Fatalf("result kept failure details: exit=%d err=%v", res.ExitCode, res.Err)
	}
	summary := report.Summary()
	if strings.Contains(summary, "failed") {
		t.Fatalf("summary reports a failure for a completed run:\n%s", summary)
	}
	if !strings.Contains(summary, "Separation: success") || !strings.Contains(summary, "Completed") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestSeparationMissingArtifactAppliesFallback(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Separation].hook = nil
	h.resolver.outcome = fallback.Applied
	h.resolver.err = nil

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !report.FallbackApplied {
		t.Fatal("expected fallback when separation exits 0 without output")
	}
}

func TestSeparationUnrecoverableAborts(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Separation].outcome = stage.Failure
	h.stages[stage.Separation].code = 3
	h.stages[stage.Separation].hook = nil

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if !errors.Is(err, services.ErrFallbackUnrecoverable) {
		t.Fatalf("expected ErrFallbackUnrecoverable, got %v", err)
	}
	if report.ExitCode != ExitFallback {
		t.Fatalf("exit = %d, want %d", report.ExitCode, ExitFallback)
	}
	want := []string{string(stage.Separation), "fallback"}
	if !reflect.DeepEqual(h.rec.calls, want) {
		t.Fatalf("slicing must not run; calls = %v", h.rec.calls)
	}
}

func TestSkipSeparationStillResolvesFallback(t *testing.T) {
	h := newHarness(t)
	h.resolver.outcome = fallback.Applied
	h.resolver.err = nil

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{SkipSeparation: true}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if h.rec.calls[0] != "fallback" {
		t.Fatalf("separation must not execute when skipped; calls = %v", h.rec.calls)
	}
	sep, _ := report.Result(stage.Separation)
	if !sep.Skipped || !sep.FallbackUsed {
		t.Fatalf("unexpected separation result %+v", sep)
	}
}

func TestPreflightFailureAbortsBeforeStages(t *testing.T) {
	h := newHarness(t)
	h.orch.Preflight = func(context.Context) error {
		return services.Wrap(services.ErrEnvironment, "", "preflight", "FFmpeg: binary not found", nil)
	}

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != ExitEnvironment {
		t.Fatalf("ExitCode = %d, want %d", got, ExitEnvironment)
	}
	if len(h.rec.calls) != 0 {
		t.Fatalf("no stage may run after preflight failure; calls = %v", h.rec.calls)
	}
	if !reflect.DeepEqual(report.Transitions, []State{StateInit, StateAborted}) {
		t.Fatalf("transitions = %v", report.Transitions)
	}
}

func TestDependencyFailureIsAdvisory(t *testing.T) {
	h := newHarness(t)
	h.orch.Guard = &fakeGuard{reports: []deps.Report{{
		Package: "jieba_fast",
		Outcome: deps.InstallFailed,
		Err:     services.Wrap(services.ErrDependency, "", "ensure package", "pip failed", nil),
	}}}

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if err != nil {
		t.Fatalf("dependency failure must not abort: %v", err)
	}
	if len(report.Dependencies) != 1 || !strings.Contains(report.Summary(), "jieba_fast") {
		t.Fatalf("expected dependency warning in report:\n%s", report.Summary())
	}
}

func TestResetFailureAbortsWithWorkspaceCode(t *testing.T) {
	h := newHarness(t)
	h.orch.Reset = func(context.Context, []string) error {
		return services.Wrap(services.ErrWorkspace, "", "reset", "permission denied", nil)
	}

	report, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != ExitWorkspace {
		t.Fatalf("ExitCode = %d, want %d", got, ExitWorkspace)
	}
	if len(h.rec.calls) != 0 || report.State != StateAborted {
		t.Fatalf("unexpected calls %v state %s", h.rec.calls, report.State)
	}
}

func TestLockBusyAborts(t *testing.T) {
	h := newHarness(t)
	lock, err := workspace.AcquireLock(h.orch.Paths.LockPath)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer func() { _ = lock.Release() }()

	_, err = h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != ExitLocked {
		t.Fatalf("ExitCode = %d, want %d (err=%v)", got, ExitLocked, err)
	}
}

func TestInterruptDuringStage(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prev := h.stages[stage.Training].hook
	h.stages[stage.Training].hook = func(rc stage.RunContext) {
		prev(rc)
		cancel()
	}

	_, err := h.orch.Execute(ctx, newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != ExitInterrupted {
		t.Fatalf("ExitCode = %d, want %d", got, ExitInterrupted)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, call := range h.rec.calls {
		if call == string(stage.PostProcessing) {
			t.Fatal("post-processing ran after interrupt")
		}
	}
}

func TestStageOrderIsEnforced(t *testing.T) {
	h := newHarness(t)
	h.orch.Stages[1], h.orch.Stages[2] = h.orch.Stages[2], h.orch.Stages[1]

	_, err := h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	if got := ExitCode(err); got != ExitValidation {
		t.Fatalf("ExitCode = %d, want %d", got, ExitValidation)
	}
	if len(h.rec.calls) != 0 {
		t.Fatalf("no stage may run; calls = %v", h.rec.calls)
	}
}

type recordingObserver struct {
	events []string
	final  *Report
}

func (r *recordingObserver) RunStarted(context.Context, Run) { r.events = append(r.events, "run_started") }

func (r *recordingObserver) StageStarted(_ context.Context, _ Run, name stage.Name) {
	r.events = append(r.events, "start:"+string(name))
}

func (r *recordingObserver) StageFinished(_ context.Context, _ Run, res stage.Result) {
	r.events = append(r.events, "finish:"+string(res.Stage))
}

func (r *recordingObserver) RunFinished(_ context.Context, report *Report) {
	r.events = append(r.events, "run_finished")
	r.final = report
}

func TestObserverSeesLifecycle(t *testing.T) {
	h := newHarness(t)
	h.stages[stage.Slicing].outcome = stage.Failure
	h.stages[stage.Slicing].code = 9
	obs := &recordingObserver{}
	h.orch.Observers = []Observer{obs}

	_, _ = h.orch.Execute(context.Background(), newTestRun(t, RunOptions{}))
	want := []string{
		"run_started",
		"start:separation", "finish:separation",
		"start:slicing", "finish:slicing",
		"run_finished",
	}
	if !reflect.DeepEqual(obs.events, want) {
		t.Fatalf("events = %v, want %v", obs.events, want)
	}
	if obs.final == nil || obs.final.State != StateAborted || obs.final.ExitCode != 9 {
		t.Fatalf("unexpected final report %+v", obs.final)
	}
}

func TestNewRunValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    RunOptions
		wantErr bool
	}{
		{name: "english", opts: RunOptions{Language: "en", Model: "my-voice"}},
		{name: "chinese uppercase", opts: RunOptions{Language: "ZH", Model: "声音"}},
		{name: "unsupported language", opts: RunOptions{Language: "fr", Model: "my-voice"}, wantErr: true},
		{name: "empty language", opts: RunOptions{Model: "my-voice"}, wantErr: true},
		{name: "empty model", opts: RunOptions{Language: "en"}, wantErr: true},
		{name: "traversal model", opts: RunOptions{Language: "en", Model: ".."}, wantErr: true},
		{name: "path model", opts: RunOptions{Language: "en", Model: "a/b"}, wantErr: true},
		{name: "bad device", opts: RunOptions{Language: "en", Model: "v", Device: "tpu"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := NewRun(tt.opts)
			if tt.wantErr {
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				if ExitCode(err) != ExitValidation {
					t.Fatalf("expected exit %d, got %d", ExitValidation, ExitCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRun: %v", err)
			}
			if run.ID == "" || run.Device != "cuda" {
				t.Fatalf("unexpected run %+v", run)
			}
		})
	}
}

func TestNewRunHalfPrecisionRequiresCUDA(t *testing.T) {
	run, err := NewRun(RunOptions{Language: "en", Model: "v", Device: "cpu", HalfPrecision: true})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.HalfPrecision {
		t.Fatal("half precision must be disabled on cpu")
	}
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{services.Wrap(services.ErrValidation, "", "", "x", nil), ExitValidation},
		{services.Wrap(services.ErrConfiguration, "", "", "x", nil), ExitValidation},
		{services.Wrap(services.ErrEnvironment, "", "", "x", nil), ExitEnvironment},
		{services.Wrap(services.ErrWorkspace, "", "", "x", nil), ExitWorkspace},
		{services.Wrap(services.ErrFallbackUnrecoverable, "", "", "x", nil), ExitFallback},
		{services.Wrap(services.ErrMissingArtifact, "", "", "x", nil), ExitMissingArtifact},
		{services.Wrap(services.ErrLocked, "", "", "x", nil), ExitLocked},
		{context.Canceled, ExitInterrupted},
		{&AbortError{Stage: stage.Training, Code: 42, Err: errors.New("boom")}, 42},
		{errors.New("unknown"), ExitGeneric},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	if !StateInit.CanTransition(StateGuarded) || StateInit.CanTransition(StateRunning) {
		t.Fatal("init may only move to guarded or aborted")
	}
	if StateCompleted.CanTransition(StateAborted) || !StateCompleted.Terminal() {
		t.Fatal("completed must be terminal")
	}
	for _, s := range []State{StateInit, StateGuarded, StateCleaned, StateRunning} {
		if !s.CanTransition(StateAborted) {
			t.Fatalf("%s must be able to abort", s)
		}
	}
}
