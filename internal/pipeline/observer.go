package pipeline

import (
	"context"

	"voxclone/internal/stage"
)

// Observer receives run lifecycle events. Implementations must not block for
// long and must not fail the run; they log their own errors.
type Observer interface {
	RunStarted(ctx context.Context, run Run)
	StageStarted(ctx context.Context, run Run, name stage.Name)
	StageFinished(ctx context.Context, run Run, result stage.Result)
	RunFinished(ctx context.Context, report *Report)
}

type observers []Observer

func (o observers) runStarted(ctx context.Context, run Run) {
	for _, obs := range o {
		obs.RunStarted(ctx, run)
	}
}

func (o observers) stageStarted(ctx context.Context, run Run, name stage.Name) {
	for _, obs := range o {
		obs.StageStarted(ctx, run, name)
	}
}

func (o observers) stageFinished(ctx context.Context, run Run, result stage.Result) {
	for _, obs := range o {
		obs.StageFinished(ctx, run, result)
	}
}

func (o observers) runFinished(ctx context.Context, report *Report) {
	for _, obs := range o {
		obs.RunFinished(ctx, report)
	}
}
