package journal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxclone/internal/config"
	"voxclone/internal/fallback"
	"voxclone/internal/journal"
	"voxclone/internal/logging"
	"voxclone/internal/pipeline"
	"voxclone/internal/stage"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	first, err := journal.Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := journal.Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = second.Close()
}

func TestRunLifecycleRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	if err := store.InsertRun(ctx, journal.RunRecord{ID: "run-a", Model: "my-voice", Language: "en", Device: "cuda", StartedAt: started}); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if err := store.UpsertStage(ctx, journal.StageRecord{RunID: "run-a", Stage: "slicing", Ordinal: 2, Outcome: "failure", ExitCode: 3, Elapsed: 1500 * time.Millisecond}); err != nil {
		t.Fatalf("UpsertStage: %v", err)
	}
	if err := store.UpsertStage(ctx, journal.StageRecord{RunID: "run-a", Stage: "separation", Ordinal: 1, Outcome: "success", FallbackUsed: true}); err != nil {
		t.Fatalf("UpsertStage: %v", err)
	}
	if err := store.FinishRun(ctx, "run-a", "aborted", 3, true, "slicing failed", time.Now()); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	rec, err := store.Get(ctx, "run-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != "aborted" || rec.ExitCode == nil || *rec.ExitCode != 3 || !rec.FallbackApplied {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Duration() < time.Minute {
		t.Fatalf("expected duration of at least a minute, got %s", rec.Duration())
	}

	stages, err := store.Stages(ctx, "run-a")
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	if len(stages) != 2 || stages[0].Stage != "separation" || stages[1].Elapsed != 1500*time.Millisecond {
		t.Fatalf("unexpected stages %+v", stages)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := openStore(t)
	err := store.FinishRun(context.Background(), "missing", "completed", 0, false, "", time.Now())
	if !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, rec := range []journal.RunRecord{
		{ID: "r1", Model: "alpha", Language: "en", Device: "cpu"},
		{ID: "r2", Model: "beta", Language: "zh", Device: "cuda"},
		{ID: "r3", Model: "alpha", Language: "en", Device: "cuda"},
	} {
		rec.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.InsertRun(ctx, rec); err != nil {
			t.Fatalf("InsertRun %s: %v", rec.ID, err)
		}
	}

	all, err := store.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r3" || all[2].ID != "r1" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	alpha, err := store.List(ctx, journal.Filter{Model: "alpha", Limit: 1})
	if err != nil {
		t.Fatalf("List alpha: %v", err)
	}
	if len(alpha) != 1 || alpha[0].ID != "r3" {
		t.Fatalf("unexpected filtered list %+v", alpha)
	}
}

func TestGetByPrefix(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"abc-1", "abd-2"} {
		if err := store.InsertRun(ctx, journal.RunRecord{ID: id, Model: "m", Language: "en", Device: "cpu"}); err != nil {
			t.Fatalf("InsertRun: %v", err)
		}
	}
	rec, err := store.Get(ctx, "abc")
	if err != nil || rec.ID != "abc-1" {
		t.Fatalf("expected abc-1, got %+v (%v)", rec, err)
	}
	if _, err := store.Get(ctx, "ab"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
	if _, err := store.Get(ctx, "zzz"); !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneRemovesOldFinishedRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	_ = store.InsertRun(ctx, journal.RunRecord{ID: "old", Model: "m", Language: "en", Device: "cpu", StartedAt: old})
	_ = store.FinishRun(ctx, "old", "completed", 0, false, "", old.Add(time.Minute))
	_ = store.InsertRun(ctx, journal.RunRecord{ID: "open", Model: "m", Language: "en", Device: "cpu", StartedAt: old})
	_ = store.InsertRun(ctx, journal.RunRecord{ID: "new", Model: "m", Language: "en", Device: "cpu"})

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 run pruned, got %d", removed)
	}
	runs, _ := store.List(ctx, journal.Filter{})
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs left, got %d", len(runs))
	}
}

func TestObserverRecordsRun(t *testing.T) {
	store := openStore(t)
	obs := journal.NewObserver(store, logging.NewNop())
	ctx := context.Background()

	run, err := pipeline.NewRun(pipeline.RunOptions{Language: "zh", Model: "voice", SkipSeparation: true})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	obs.RunStarted(ctx, run)
	slicing := stage.Result{Stage: stage.Slicing, Outcome: stage.Failure, ExitCode: 4, Err: errors.New("boom")}
	obs.StageFinished(ctx, run, slicing)
	obs.RunFinished(ctx, &pipeline.Report{
		Run:      run,
		State:    pipeline.StateAborted,
		ExitCode: 4,
		Err:      errors.New("slicing failed"),
		Finished: time.Now(),
		Results: []stage.Result{
			{Stage: stage.Separation, Outcome: stage.Success, Skipped: true, FallbackUsed: true},
			slicing,
		},
		FallbackApplied: true,
	})

	rec, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != "aborted" || rec.Language != "zh" || !rec.SkipSeparation || !rec.FallbackApplied {
		t.Fatalf("unexpected record %+v", rec)
	}
	stages, err := store.Stages(ctx, run.ID)
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	if len(stages) != 2 || !stages[0].Skipped || stages[1].ErrorMessage != "boom" {
		t.Fatalf("unexpected stages %+v", stages)
	}
}

type scriptedStage struct {
	name stage.Name
	run  func(rc stage.RunContext)
}

func (s scriptedStage) Name() stage.Name { return s.name }

func (s scriptedStage) Execute(_ context.Context, rc stage.RunContext) stage.Result {
	if s.run != nil {
		s.run(rc)
	}
	return stage.Result{Stage: s.name, Outcome: stage.Success, Started: time.Now()}
}

type presentResolver struct{}

func (presentResolver) Resolve(context.Context, string, string) (fallback.Outcome, error) {
	return fallback.OK, nil
}

func TestObserverRecordsInterruptedStage(t *testing.T) {
	store := openStore(t)
	root := t.TempDir()
	input := filepath.Join(root, "input")
	if err := os.MkdirAll(input, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(input, "audio.mp3"), []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	defs, err := stage.Definitions(&cfg)
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stages := make([]stage.Stage, 0, len(stage.Order))
	for _, name := range stage.Order {
		st := scriptedStage{name: name}
		switch name {
		case stage.Separation:
			st.run = func(rc stage.RunContext) {
				if err := os.WriteFile(filepath.Join(rc.Layout.SeparationDir, "vocal.wav"), []byte("pcm"), 0o644); err != nil {
					t.Errorf("write vocal track: %v", err)
				}
			}
		case stage.Slicing:
			st.run = func(stage.RunContext) { cancel() }
		}
		stages = append(stages, st)
	}

	orch := &pipeline.Orchestrator{
		Paths: pipeline.Paths{
			InputDir:  input,
			OutputDir: filepath.Join(root, "output"),
			LogsDir:   filepath.Join(root, "logs"),
			ToolsDir:  filepath.Join(root, "tools"),
		},
		Definitions: defs,
		Stages:      stages,
		Resolver:    presentResolver{},
		Observers:   []pipeline.Observer{journal.NewObserver(store, logging.NewNop())},
		Logger:      logging.NewNop(),
	}
	run, err := pipeline.NewRun(pipeline.RunOptions{Language: "en", Model: "voice"})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	report, err := orch.Execute(ctx, run)
	if err == nil {
		t.Fatal("expected interrupted run to fail")
	}
	if report.ExitCode != pipeline.ExitInterrupted {
		t.Fatalf("exit = %d, want %d", report.ExitCode, pipeline.ExitInterrupted)
	}

	stored, err := store.Stages(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	if len(stored) != len(report.Results) {
		t.Fatalf("journal has %d stage rows, report has %d results", len(stored), len(report.Results))
	}
	last := stored[len(stored)-1]
	if last.Stage != string(stage.Slicing) {
		t.Fatalf("last stage row = %q, want %q", last.Stage, stage.Slicing)
	}
	rec, err := store.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != string(pipeline.StateAborted) || rec.ExitCode == nil || *rec.ExitCode != pipeline.ExitInterrupted {
		t.Fatalf("unexpected run record %+v", rec)
	}
}
