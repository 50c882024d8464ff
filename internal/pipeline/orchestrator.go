package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"voxclone/internal/config"
	"voxclone/internal/deps"
	"voxclone/internal/fallback"
	"voxclone/internal/logging"
	"voxclone/internal/preflight"
	"voxclone/internal/services"
	"voxclone/internal/stage"
	"voxclone/internal/stageexec"
	"voxclone/internal/workspace"
)

// DependencyGuard installs optional Python packages before the run.
type DependencyGuard interface {
	EnsureAll(ctx context.Context, packages []string) []deps.Report
}

// FallbackResolver stands in for a missing separation artifact.
type FallbackResolver interface {
	Resolve(ctx context.Context, expected, raw string) (fallback.Outcome, error)
}

// Paths are the root directories a run works in.
type Paths struct {
	InputDir  string
	OutputDir string
	LogsDir   string
	ToolsDir  string
	LockPath  string
}

// Orchestrator sequences the stages of a run. Every collaborator is a field
// so tests can replace it.
type Orchestrator struct {
	Paths       Paths
	Python      string
	Packages    []string
	Definitions []stage.Definition
	Stages      []stage.Stage
	Guard       DependencyGuard
	Resolver    FallbackResolver
	// Preflight verifies the environment. A non-nil error aborts the run.
	Preflight func(ctx context.Context) error
	// Reset empties the transient workspace directories.
	Reset     func(ctx context.Context, dirs []string) error
	Observers []Observer
	Logger    *slog.Logger
}

// New wires an Orchestrator from cfg using the real executor, dependency
// guard, fallback resolver and preflight checks.
func New(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "orchestrator", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	defs, err := stage.Definitions(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "stage definitions", "", err)
	}
	executor := stageexec.New(cfg.Paths.ToolsDir, logger)
	return &Orchestrator{
		Paths: Paths{
			InputDir:  cfg.Paths.InputDir,
			OutputDir: cfg.Paths.OutputDir,
			LogsDir:   cfg.Paths.LogsDir,
			ToolsDir:  cfg.Paths.ToolsDir,
			LockPath:  cfg.LockPath(),
		},
		Python:      cfg.PythonBinary(),
		Packages:    append([]string(nil), cfg.Python.Packages...),
		Definitions: defs,
		Stages:      stageexec.Stages(defs, executor),
		Guard:       deps.NewGuard(cfg.PythonBinary(), time.Duration(cfg.Python.InstallTimeout)*time.Second, logger),
		Resolver:    fallback.NewResolver(cfg.FFmpegBinary(), cfg.FFmpeg.SampleRate, cfg.FFmpeg.Channels, logger),
		Preflight: func(ctx context.Context) error {
			return preflight.Err(preflight.RunAll(ctx, cfg))
		},
		Reset: func(ctx context.Context, dirs []string) error {
			return workspace.Reset(ctx, dirs, logger)
		},
		Logger: logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Execute drives run to a terminal state. The returned report is never nil;
// the error is nil only when the run completed.
func (o *Orchestrator) Execute(ctx context.Context, run Run) (*Report, error) {
	ctx = services.WithModel(services.WithRunID(ctx, run.ID), run.Model)
	logger := logging.WithContext(ctx, logging.WithRunID(o.logger(), run.ID))
	report := newReport(run)
	obs := observers(o.Observers)
	obs.runStarted(ctx, run)

	err := o.execute(ctx, logger, run, report)
	report.Finished = time.Now()
	if err != nil {
		report.Err = err
		report.ExitCode = ExitCode(err)
		report.transition(StateAborted)
		logging.ErrorWithContext(logger, "run aborted", "run_aborted",
			logging.Error(err),
			logging.String(logging.FieldState, string(report.stateBeforeAbort())),
			logging.Int(logging.FieldExitCode, report.ExitCode),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
	} else {
		report.transition(StateCompleted)
		logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Duration("elapsed", report.Elapsed()),
			logging.Bool("fallback_applied", report.FallbackApplied),
			logging.String("model_dir", report.ModelLogDir),
		)
	}
	obs.runFinished(context.WithoutCancel(ctx), report)
	return report, err
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, run Run, report *Report) error {
	if err := o.validate(); err != nil {
		return o.abort(StateInit, "", ExitValidation, err)
	}
	layout, err := workspace.NewLayout(o.Paths.InputDir, o.Paths.OutputDir, o.Paths.LogsDir, run.Model)
	if err != nil {
		return o.abort(StateInit, "", 0, err)
	}
	report.ModelLogDir = layout.ModelLogDir

	if o.Paths.LockPath != "" {
		lock, err := workspace.AcquireLock(o.Paths.LockPath)
		if err != nil {
			return o.abort(StateInit, "", 0, err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn("workspace lock release failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "lock_release_failed"),
					logging.String(logging.FieldErrorHint, "remove "+lock.Path()+" if no other run is active"),
				)
			}
		}()
	}

	// Init -> Guarded
	if o.Preflight != nil {
		if err := o.Preflight(ctx); err != nil {
			return o.abort(StateInit, "", 0, err)
		}
	}
	if o.Guard != nil && len(o.Packages) > 0 {
		report.Dependencies = o.Guard.EnsureAll(ctx, o.Packages)
	}
	if err := ctx.Err(); err != nil {
		return o.interrupted(StateInit, "", err)
	}
	for _, dep := range report.Dependencies {
		if services.Fatal(dep.Err) {
			return o.abort(StateInit, "", 0, dep.Err)
		}
	}
	report.transition(StateGuarded)

	// Guarded -> Cleaned
	if err := o.reset(ctx, layout.Transient()); err != nil {
		if ctx.Err() != nil {
			return o.interrupted(StateGuarded, "", ctx.Err())
		}
		return o.abort(StateGuarded, "", 0, err)
	}
	if err := layout.EnsureModelLogDir(); err != nil {
		return o.abort(StateGuarded, "", 0, err)
	}
	source, err := fallback.SelectSource(layout.InputDir, run.Source)
	if err != nil {
		logging.WarnWithContext(logger, "no raw source audio found", "source_missing",
			logging.Error(err),
			logging.String("input_dir", layout.InputDir),
			logging.String(logging.FieldImpact, "separation fallback will be unavailable"),
			logging.String(logging.FieldErrorHint, "place an audio file in the input directory or pass --input"),
		)
	}
	report.Source = source
	if err := writeRunManifest(layout.ModelLogDir, run, source); err != nil {
		return o.abort(StateGuarded, "", 0, err)
	}
	report.transition(StateCleaned)
	logger.Info("workspace ready",
		logging.String(logging.FieldEventType, "workspace_ready"),
		logging.String("source", source),
		logging.String("model_dir", layout.ModelLogDir),
	)

	rc := stage.RunContext{
		RunID:         run.ID,
		Language:      run.Language.String(),
		Model:         run.Model,
		Device:        run.Device,
		HalfPrecision: run.HalfPrecision,
		Python:        o.Python,
		Source:        source,
		ToolsDir:      o.Paths.ToolsDir,
		Layout:        layout,
	}

	for _, st := range o.Stages {
		if err := ctx.Err(); err != nil {
			return o.interrupted(StateRunning, st.Name(), err)
		}
		report.transition(StateRunning)
		def := o.definition(st.Name())
		if st.Name() == stage.Separation {
			if err := o.runSeparation(ctx, logger, run, rc, st, def, report); err != nil {
				return err
			}
			continue
		}
		if err := o.runStage(ctx, run, rc, st, def, report); err != nil {
			return err
		}
	}
	return nil
}

// runSeparation runs stage 1 and hands a missing artifact to the fallback
// resolver. Only an unrecoverable fallback aborts the run.
func (o *Orchestrator) runSeparation(ctx context.Context, logger *slog.Logger, run Run, rc stage.RunContext, st stage.Stage, def stage.Definition, report *Report) error {
	obs := observers(o.Observers)
	artifact := def.Artifact
	if artifact == "" {
		artifact = "vocal.wav"
	}
	expected := filepath.Join(rc.Layout.SeparationDir, artifact)

	var result stage.Result
	if run.SkipSeparation {
		result = stage.Result{Stage: stage.Separation, Outcome: stage.Success, Skipped: true, Started: time.Now()}
		logger.Info("separation skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String(logging.FieldStage, string(stage.Separation)),
		)
	} else {
		obs.stageStarted(ctx, run, st.Name())
		result = st.Execute(ctx, rc)
		if ctx.Err() != nil {
			report.Results = append(report.Results, result)
			obs.stageFinished(context.WithoutCancel(ctx), run, result)
			return o.interrupted(StateRunning, stage.Separation, ctx.Err())
		}
		if result.OK() {
			if _, err := fallback.Promote(rc.Layout.SeparationDir, expected); err != nil {
				logger.Warn("separation output promotion failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "promote_failed"),
					logging.String(logging.FieldErrorHint, "check the separation output directory"),
				)
			}
		}
	}

	outcome, err := o.resolve(ctx, expected, rc.Source)
	switch {
	case outcome == fallback.Applied:
		result = recovered(result)
		result.FallbackUsed = true
		report.FallbackApplied = true
		if !result.Started.IsZero() {
			result.Elapsed = time.Since(result.Started)
		}
	case outcome == fallback.OK && !result.OK():
		logger.Warn("separation failed but left a usable vocal track",
			logging.Int(logging.FieldExitCode, result.ExitCode),
			logging.String(logging.FieldEventType, "separation_output_kept"),
			logging.String(logging.FieldImpact, "continuing with the existing separation output"),
		)
		result = recovered(result)
	}
	report.Results = append(report.Results, result)
	if !run.SkipSeparation {
		obs.stageFinished(context.WithoutCancel(ctx), run, result)
	}
	if err != nil {
		if ctx.Err() != nil {
			return o.interrupted(StateRunning, stage.Separation, ctx.Err())
		}
		return o.abort(StateRunning, stage.Separation, ExitFallback, err)
	}
	return nil
}

// recovered marks a separation result as usable once its vocal track is in
// place, dropping the exit code and error of the failed attempt.
func recovered(result stage.Result) stage.Result {
	result.Outcome = stage.Success
	result.ExitCode = 0
	result.Err = nil
	return result
}

func (o *Orchestrator) runStage(ctx context.Context, run Run, rc stage.RunContext, st stage.Stage, def stage.Definition, report *Report) error {
	obs := observers(o.Observers)
	obs.stageStarted(ctx, run, st.Name())
	result := st.Execute(ctx, rc)
	report.Results = append(report.Results, result)
	obs.stageFinished(context.WithoutCancel(ctx), run, result)

	if ctx.Err() != nil {
		return o.interrupted(StateRunning, st.Name(), ctx.Err())
	}
	if !result.OK() {
		code := result.ExitCode
		if code == 0 {
			code = ExitGeneric
		}
		cause := result.Err
		if cause == nil {
			cause = errors.New(result.String())
		}
		return o.abort(StateRunning, st.Name(), code,
			services.Wrap(services.ErrStageFailure, string(st.Name()), "execute", string(result.Outcome), cause))
	}
	if def.Artifact == "" {
		return nil
	}
	dir := def.Output.Resolve(rc.Layout)
	ok, err := workspace.HasArtifact(dir, def.Artifact)
	if err != nil {
		return o.abort(StateRunning, st.Name(), ExitWorkspace,
			services.Wrap(services.ErrWorkspace, string(st.Name()), "inspect output", dir, err))
	}
	if !ok {
		return o.abort(StateRunning, st.Name(), ExitMissingArtifact,
			services.Wrap(services.ErrMissingArtifact, string(st.Name()), "verify output",
				fmt.Sprintf("no %s in %s", def.Artifact, dir), nil))
	}
	return nil
}

func (o *Orchestrator) resolve(ctx context.Context, expected, raw string) (fallback.Outcome, error) {
	if o.Resolver == nil {
		return fallback.NewResolver("", 0, 0, o.Logger).Resolve(ctx, expected, raw)
	}
	return o.Resolver.Resolve(ctx, expected, raw)
}

func (o *Orchestrator) reset(ctx context.Context, dirs []string) error {
	if o.Reset == nil {
		return workspace.Reset(ctx, dirs, o.logger())
	}
	return o.Reset(ctx, dirs)
}

// validate checks that exactly the six stages are wired, in order.
func (o *Orchestrator) validate() error {
	if len(o.Stages) != len(stage.Order) {
		return services.Wrap(services.ErrConfiguration, "", "orchestrator",
			fmt.Sprintf("expected %d stages, got %d", len(stage.Order), len(o.Stages)), nil)
	}
	for i, st := range o.Stages {
		if st == nil || st.Name() != stage.Order[i] {
			return services.Wrap(services.ErrConfiguration, "", "orchestrator",
				fmt.Sprintf("stage %d must be %s", i+1, stage.Order[i]), nil)
		}
	}
	return nil
}

func (o *Orchestrator) definition(name stage.Name) stage.Definition {
	for _, def := range o.Definitions {
		if def.Name == name {
			return def
		}
	}
	return stage.Definition{Name: name}
}

func (o *Orchestrator) abort(state State, name stage.Name, code int, err error) error {
	if code == 0 {
		code = ExitCode(err)
	}
	return &AbortError{State: state, Stage: name, Code: code, Err: err}
}

func (o *Orchestrator) interrupted(state State, name stage.Name, err error) error {
	return &AbortError{State: state, Stage: name, Code: ExitInterrupted, Err: fmt.Errorf("interrupted: %w", err)}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return logging.NewNop()
	}
	return o.Logger
}

func (r *Report) stateBeforeAbort() State {
	var abort *AbortError
	if errors.As(r.Err, &abort) {
		return abort.State
	}
	return r.State
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "run was interrupted; start it again to redo every stage"
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		return "check the language code, model name and config file"
	case errors.Is(err, services.ErrEnvironment):
		return "run voxclone check to see which tool or directory is missing"
	case errors.Is(err, services.ErrLocked):
		return "another run holds the workspace; wait for it to finish"
	case errors.Is(err, services.ErrWorkspace):
		return "check permissions on the output and logs directories"
	case errors.Is(err, services.ErrFallbackUnrecoverable):
		return "place the raw recording in the input directory"
	case errors.Is(err, services.ErrMissingArtifact):
		return "the stage exited cleanly but wrote nothing; inspect its log output"
	default:
		return "inspect the stage output above for the cause"
	}
}
