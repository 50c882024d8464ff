package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"voxclone/internal/pipeline"
	"voxclone/internal/workspace"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the separation, sliced and transcription directories",
		Long: `Remove everything under the transient stage directories and recreate
them empty. Model directories under logs_dir are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.consoleLogger(cfg)
			if err != nil {
				return err
			}

			lock, err := workspace.AcquireLock(cfg.LockPath())
			if err != nil {
				return &exitError{code: pipeline.ExitCode(err), err: err}
			}
			defer func() { _ = lock.Release() }()

			dirs := []string{
				filepath.Join(cfg.Paths.OutputDir, workspace.SeparationDirName),
				filepath.Join(cfg.Paths.OutputDir, workspace.SlicedDirName),
				filepath.Join(cfg.Paths.OutputDir, workspace.TranscriptionDirName),
			}
			if err := workspace.Reset(cmd.Context(), dirs, logger); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dir := range dirs {
				fmt.Fprintf(out, "Reset %s\n", dir)
			}
			return nil
		},
	}
}
