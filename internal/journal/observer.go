package journal

import (
	"context"
	"log/slog"

	"voxclone/internal/logging"
	"voxclone/internal/pipeline"
	"voxclone/internal/stage"
)

// Observer writes pipeline lifecycle events to the journal. Write failures
// are logged and never interrupt the run.
type Observer struct {
	store  *Store
	logger *slog.Logger
}

// NewObserver returns an Observer backed by store.
func NewObserver(store *Store, logger *slog.Logger) *Observer {
	return &Observer{store: store, logger: logging.NewComponentLogger(logger, "journal")}
}

func (o *Observer) RunStarted(ctx context.Context, run pipeline.Run) {
	o.check(o.store.InsertRun(ctx, RunRecord{
		ID:             run.ID,
		Model:          run.Model,
		Language:       run.Language.String(),
		Device:         run.Device,
		Source:         run.Source,
		SkipSeparation: run.SkipSeparation,
		State:          string(pipeline.StateInit),
		StartedAt:      run.Started,
	}))
}

func (o *Observer) StageStarted(context.Context, pipeline.Run, stage.Name) {}

func (o *Observer) StageFinished(ctx context.Context, run pipeline.Run, result stage.Result) {
	o.check(o.store.UpsertStage(ctx, stageRecord(run.ID, result)))
}

func (o *Observer) RunFinished(ctx context.Context, report *pipeline.Report) {
	if report == nil {
		return
	}
	// A skipped separation never reaches StageFinished.
	if sep, ok := report.Result(stage.Separation); ok && sep.Skipped {
		o.check(o.store.UpsertStage(ctx, stageRecord(report.Run.ID, sep)))
	}
	errMsg := ""
	if report.Err != nil {
		errMsg = report.Err.Error()
	}
	o.check(o.store.FinishRun(ctx, report.Run.ID, string(report.State), report.ExitCode,
		report.FallbackApplied, errMsg, report.Finished))
}

func stageRecord(runID string, result stage.Result) StageRecord {
	rec := StageRecord{
		RunID:        runID,
		Stage:        string(result.Stage),
		Ordinal:      result.Stage.Ordinal(),
		Outcome:      string(result.Outcome),
		ExitCode:     result.ExitCode,
		Elapsed:      result.Elapsed,
		FallbackUsed: result.FallbackUsed,
		Skipped:      result.Skipped,
	}
	if result.Err != nil {
		rec.ErrorMessage = result.Err.Error()
	}
	return rec
}

func (o *Observer) check(err error) {
	if err == nil {
		return
	}
	o.logger.Warn("run journal write failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "journal_write_failed"),
		logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
		logging.String(logging.FieldImpact, "voxclone history will be incomplete for this run"),
	)
}
