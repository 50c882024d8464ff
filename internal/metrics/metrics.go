package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"voxclone/internal/logging"
	"voxclone/internal/pipeline"
	"voxclone/internal/stage"
)

const namespace = "voxclone"

// Observer implements pipeline.Observer and flushes a textfile on
// RunFinished. Metrics live on a private registry.
type Observer struct {
	path     string
	logger   *slog.Logger
	registry *prometheus.Registry

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fallbacks     prometheus.Counter
	lastExitCode  *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	lastDuration  *prometheus.GaugeVec
	lastFinished  *prometheus.GaugeVec
}

// NewObserver returns an Observer writing to path. An empty path disables
// the textfile but metrics are still collected.
func NewObserver(path string, logger *slog.Logger) *Observer {
	o := &Observer{
		path:     path,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		registry: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Stage executions by outcome.",
		}, []string{"model", "stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each stage.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"model", "stage"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_applied_total",
			Help:      "Runs where ffmpeg replaced the separated vocal track.",
		}),
		lastExitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_exit_code",
			Help:      "Exit code of the most recent run.",
		}, []string{"model"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the most recent run completed.",
		}, []string{"model"}),
		lastDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent run.",
		}, []string{"model"}),
		lastFinished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}, []string{"model"}),
	}
	o.registry.MustRegister(
		o.stageRuns,
		o.stageDuration,
		o.fallbacks,
		o.lastExitCode,
		o.lastSuccess,
		o.lastDuration,
		o.lastFinished,
	)
	return o
}

// Registry exposes the collectors for tests and callers that serve them.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) RunStarted(context.Context, pipeline.Run) {}

func (o *Observer) StageStarted(context.Context, pipeline.Run, stage.Name) {}

func (o *Observer) StageFinished(_ context.Context, run pipeline.Run, result stage.Result) {
	o.observeStage(run.Model, result)
}

func (o *Observer) RunFinished(_ context.Context, report *pipeline.Report) {
	if report == nil {
		return
	}
	model := report.Run.Model
	if sep, ok := report.Result(stage.Separation); ok && sep.Skipped {
		o.observeStage(model, sep)
	}
	if report.FallbackApplied {
		o.fallbacks.Inc()
	}
	success := 0.0
	if report.State == pipeline.StateCompleted {
		success = 1
	}
	o.lastExitCode.WithLabelValues(model).Set(float64(report.ExitCode))
	o.lastSuccess.WithLabelValues(model).Set(success)
	o.lastDuration.WithLabelValues(model).Set(report.Elapsed().Seconds())
	if !report.Finished.IsZero() {
		o.lastFinished.WithLabelValues(model).Set(float64(report.Finished.Unix()))
	}

	if err := o.Flush(); err != nil {
		logging.WarnWithContext(o.logger, "metrics textfile not written", "metrics_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "node_exporter keeps the previous run's values"),
			logging.String(logging.FieldErrorHint, "check metrics.textfile directory permissions"),
		)
	}
}

func (o *Observer) observeStage(model string, result stage.Result) {
	outcome := string(result.Outcome)
	switch {
	case result.Skipped:
		outcome = "skipped"
	case result.FallbackUsed:
		outcome = "fallback"
	}
	o.stageRuns.WithLabelValues(model, string(result.Stage), outcome).Inc()
	if !result.Skipped {
		o.stageDuration.WithLabelValues(model, string(result.Stage)).Observe(result.Elapsed.Seconds())
	}
}

// Flush writes the registry to the configured textfile. WriteToTextfile
// renames a temporary file into place so node_exporter never reads a
// partial file.
func (o *Observer) Flush() error {
	if o.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("ensure metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(o.path, o.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
