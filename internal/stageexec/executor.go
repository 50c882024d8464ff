package stageexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"voxclone/internal/logging"
	"voxclone/internal/services"
	"voxclone/internal/stage"
)

// ExitInterrupted is reported when the run context is cancelled mid-stage.
const ExitInterrupted = 130

// Executor runs stage definitions as child processes.
type Executor struct {
	// WorkDir is the directory stage commands run in; relative script paths
	// resolve against it.
	WorkDir string
	// KillGrace is how long a cancelled stage gets between SIGTERM and SIGKILL.
	KillGrace time.Duration
	Logger    *slog.Logger
}

// New returns an Executor rooted at workDir.
func New(workDir string, logger *slog.Logger) *Executor {
	return &Executor{
		WorkDir:   workDir,
		KillGrace: 10 * time.Second,
		Logger:    logging.NewComponentLogger(logger, "stageexec"),
	}
}

// Run executes def once and blocks until the process exits.
func (e *Executor) Run(ctx context.Context, def stage.Definition, rc stage.RunContext) stage.Result {
	stageCtx := services.WithStage(services.WithModel(ctx, rc.Model), string(def.Name))
	logger := logging.WithContext(stageCtx, e.logger())
	result := stage.Result{Stage: def.Name, Started: time.Now()}

	name, args := def.Expand(rc)
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("ordinal", def.Ordinal()),
		logging.String("command", strings.TrimSpace(name+" "+strings.Join(args, " "))),
		logging.String("workdir", e.WorkDir),
	)

	finish := func(res stage.Result) stage.Result {
		res.Elapsed = time.Since(res.Started)
		e.logResult(logger, res)
		return res
	}

	executable, err := e.resolve(name, args)
	if err != nil {
		result.Outcome = stage.NotFound
		result.ExitCode = stage.ExitNotFound
		result.Err = err
		return finish(result)
	}

	if out := def.Output.Resolve(rc.Layout); out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			result.Outcome = stage.Failure
			result.ExitCode = 1
			result.Err = services.Wrap(services.ErrWorkspace, string(def.Name), "prepare output", out, err)
			return finish(result)
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec
	cmd.Dir = e.WorkDir
	cmd.Env = append(os.Environ(), rc.Env()...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = e.KillGrace

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var g errgroup.Group
	g.Go(func() error { return pumpLines(stdoutR, logger, "stdout") })
	g.Go(func() error { return pumpLines(stderrR, logger, "stderr") })

	runErr := cmd.Run()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err := g.Wait(); err != nil {
		logger.Debug("stage output pump stopped", logging.Error(err))
	}

	result.Outcome, result.ExitCode, result.Err = classify(ctx, runErr)
	return finish(result)
}

// resolve locates the executable and, when the first argument names a
// script, checks that the script exists. Either missing yields NotFound.
func (e *Executor) resolve(name string, args []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("stage command is empty")
	}
	executable := name
	if strings.ContainsRune(name, filepath.Separator) {
		if !filepath.IsAbs(name) && e.WorkDir != "" {
			executable = filepath.Join(e.WorkDir, name)
		}
		info, err := os.Stat(executable)
		if err != nil {
			return "", fmt.Errorf("executable %s: %w", name, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("executable %s is a directory", name)
		}
	} else {
		resolved, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("executable %q not found: %w", name, err)
		}
		executable = resolved
	}

	if len(args) > 0 && isScript(args[0]) {
		script := args[0]
		if !filepath.IsAbs(script) && e.WorkDir != "" {
			script = filepath.Join(e.WorkDir, script)
		}
		if _, err := os.Stat(script); err != nil {
			return "", fmt.Errorf("stage script %s: %w", args[0], err)
		}
	}
	return executable, nil
}

func isScript(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".py", ".sh":
		return true
	default:
		return false
	}
}

// classify maps the error returned by cmd.Run to an outcome and exit code.
func classify(ctx context.Context, runErr error) (stage.Outcome, int, error) {
	if runErr == nil {
		return stage.Success, 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stage.Failure, ExitInterrupted, fmt.Errorf("stage interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = signalExitCode(exitErr)
		}
		if code == stage.ExitNotFound {
			return stage.NotFound, code, runErr
		}
		return stage.Failure, code, runErr
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		return stage.NotFound, stage.ExitNotFound, runErr
	}
	if errors.Is(runErr, fs.ErrPermission) {
		return stage.Failure, 126, runErr
	}
	return stage.Failure, 1, runErr
}

func (e *Executor) logResult(logger *slog.Logger, res stage.Result) {
	attrs := []logging.Attr{
		logging.String("outcome", string(res.Outcome)),
		logging.Int(logging.FieldExitCode, res.ExitCode),
		logging.Duration("stage_duration", res.Elapsed),
	}
	if res.OK() {
		logger.Info("stage completed", logging.Args(append(attrs, logging.String(logging.FieldEventType, "stage_complete"))...)...)
		return
	}
	hint := "inspect the stage output above for the cause"
	if res.Outcome == stage.NotFound {
		hint = "check tools_dir and the stage command in the config"
	}
	if res.Err != nil {
		attrs = append(attrs, logging.Error(res.Err))
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		append(attrs, logging.String(logging.FieldErrorHint, hint))...)
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger
}

// ExternalStage adapts a definition and an executor to stage.Stage.
type ExternalStage struct {
	Def      stage.Definition
	Executor *Executor
}

func (s ExternalStage) Name() stage.Name { return s.Def.Name }

func (s ExternalStage) Execute(ctx context.Context, rc stage.RunContext) stage.Result {
	return s.Executor.Run(ctx, s.Def, rc)
}

// Stages wraps every definition in an ExternalStage sharing executor.
func Stages(defs []stage.Definition, executor *Executor) []stage.Stage {
	out := make([]stage.Stage, 0, len(defs))
	for _, def := range defs {
		out = append(out, ExternalStage{Def: def, Executor: executor})
	}
	return out
}
