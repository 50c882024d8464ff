package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"voxclone/internal/config"
	"voxclone/internal/journal"
	"voxclone/internal/logging"
	"voxclone/internal/metrics"
	"voxclone/internal/notifications"
	"voxclone/internal/pipeline"
)

type runFlags struct {
	language       string
	model          string
	input          string
	device         string
	half           bool
	skipSeparation bool
	noPause        bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full voice-clone pipeline once",
		Long: `Run separation, slicing, transcription, formatting, training and
post-processing in order for one recording. The first failing stage stops the
run and its exit code becomes the exit code of voxclone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runPipeline(cmd, ctx, cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Recording language: en or zh (default from config)")
	cmd.Flags().StringVarP(&flags.model, "model", "n", "", "Model name; outputs land in <logs_dir>/<model> (default from config)")
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Raw recording; a bare name is looked up in input_dir")
	cmd.Flags().StringVar(&flags.device, "device", "", "Compute device: cuda or cpu (default from config)")
	cmd.Flags().BoolVar(&flags.half, "half", false, "Use half precision on cuda (default from config)")
	cmd.Flags().BoolVar(&flags.skipSeparation, "skip-separation", false, "Skip vocal separation and train on the raw recording")
	cmd.Flags().BoolVar(&flags.noPause, "no-pause", false, "Exit immediately instead of waiting for Enter")
	return cmd
}

// runOptions merges flags over the [run] config section. Flags win only when
// given on the command line, so --half=false can turn off a configured true.
func runOptions(cmd *cobra.Command, cfg *config.Config, flags runFlags) pipeline.RunOptions {
	half := cfg.Run.HalfPrecision
	if cmd.Flags().Changed("half") {
		half = flags.half
	}
	return pipeline.RunOptions{
		Language:       firstNonEmpty(flags.language, cfg.Run.Language),
		Model:          firstNonEmpty(flags.model, cfg.Run.ModelName),
		Source:         firstNonEmpty(flags.input, cfg.Run.SourceFile),
		Device:         firstNonEmpty(flags.device, cfg.Run.Device),
		HalfPrecision:  half,
		SkipSeparation: flags.skipSeparation,
		NonInteractive: flags.noPause,
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, flags runFlags) error {
	out := cmd.OutOrStdout()
	run, err := pipeline.NewRun(runOptions(cmd, cfg, flags))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return &exitError{code: pipeline.ExitCode(err), err: err}
	}

	logger, logPath, closeLog, err := runLogger(ctx, cfg, run)
	if err != nil {
		return err
	}
	defer closeLog()

	logging.CleanupRunLogs(logger, cfg.Paths.LogsDir, cfg.Logging.RetentionDays, logPath)

	orch, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	if store, err := journal.Open(cfg.JournalPath()); err != nil {
		logging.WarnWithContext(logger, "run journal unavailable", "journal_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in voxclone history"),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
		)
	} else {
		defer store.Close()
		pruneJournal(cmd, store, cfg, logger)
		orch.Observers = append(orch.Observers, journal.NewObserver(store, logger))
	}
	orch.Observers = append(orch.Observers,
		notifications.NewObserver(notifications.NewService(cfg), logger),
		metrics.NewObserver(cfg.Metrics.Textfile, logger),
	)

	fmt.Fprintf(out, "Starting run %s for model %q (%s, %s)\n", run.ShortID(), run.Model, run.Language.DisplayName(), run.Device)
	report, runErr := orch.Execute(cmd.Context(), run)
	fmt.Fprint(out, report.Summary())

	if !run.NonInteractive {
		waitForEnter(cmd.InOrStdin(), out)
	}
	if runErr != nil {
		return &exitError{code: report.ExitCode, err: runErr}
	}
	return nil
}

// runLogger tees the console logger into a JSON log file kept next to the
// model outputs.
func runLogger(ctx *commandContext, cfg *config.Config, run pipeline.Run) (*slog.Logger, string, func(), error) {
	console, err := ctx.consoleLogger(cfg)
	if err != nil {
		return nil, "", nil, err
	}
	runLog, err := logging.OpenRunLog(filepath.Join(cfg.Paths.LogsDir, run.Model), run.ID, ctx.logLevel(cfg))
	if err != nil {
		console.Warn("run log file unavailable; logging to console only",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_log_unavailable"),
			logging.String(logging.FieldErrorHint, "check logs_dir permissions"),
		)
		return logging.WithRunID(console, run.ID), "", func() {}, nil
	}
	logger := logging.WithRunID(logging.TeeLogger(console, runLog.Handler), run.ID)
	logger.Debug("run log opened", logging.String("log_path", runLog.Path))
	return logger, runLog.Path, func() { _ = runLog.Close() }, nil
}

func pruneJournal(cmd *cobra.Command, store *journal.Store, cfg *config.Config, logger *slog.Logger) {
	if cfg.Logging.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
	removed, err := store.Prune(cmd.Context(), cutoff)
	if err != nil {
		logger.Debug("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Debug("journal pruned", logging.Int64("removed", removed))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
