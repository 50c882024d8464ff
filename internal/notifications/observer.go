package notifications

import (
	"context"
	"errors"
	"log/slog"

	"voxclone/internal/logging"
	"voxclone/internal/pipeline"
	"voxclone/internal/stage"
)

// Observer publishes run outcomes through a Service.
type Observer struct {
	service Service
	logger  *slog.Logger
}

// NewObserver returns a pipeline observer backed by service.
func NewObserver(service Service, logger *slog.Logger) *Observer {
	return &Observer{service: service, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (o *Observer) RunStarted(ctx context.Context, run pipeline.Run) {
	o.publish(ctx, EventRunStarted, Payload{"model": run.Model, "language": run.Language.String()})
}

func (o *Observer) StageStarted(context.Context, pipeline.Run, stage.Name) {}

func (o *Observer) StageFinished(context.Context, pipeline.Run, stage.Result) {}

func (o *Observer) RunFinished(ctx context.Context, report *pipeline.Report) {
	if report == nil {
		return
	}
	if report.State == pipeline.StateCompleted {
		if report.FallbackApplied {
			o.publish(ctx, EventFallbackApplied, Payload{"model": report.Run.Model})
		}
		o.publish(ctx, EventRunCompleted, Payload{
			"model":    report.Run.Model,
			"elapsed":  report.Elapsed(),
			"modelDir": report.ModelLogDir,
		})
		return
	}
	payload := Payload{
		"model":    report.Run.Model,
		"exitCode": report.ExitCode,
		"error":    report.Err,
	}
	var abort *pipeline.AbortError
	if errors.As(report.Err, &abort) && abort.Stage != "" {
		payload["stage"] = abort.Stage.Label()
		payload["error"] = abort.Err
	}
	o.publish(ctx, EventRunFailed, payload)
}

func (o *Observer) publish(ctx context.Context, event Event, payload Payload) {
	if o.service == nil {
		return
	}
	if err := o.service.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			o.logger.Debug("run interrupted, notification not sent", logging.String("event", string(event)))
			return
		}
		o.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
