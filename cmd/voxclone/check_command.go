package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voxclone/internal/deps"
	"voxclone/internal/logging"
	"voxclone/internal/pipeline"
	"voxclone/internal/preflight"
	"voxclone/internal/services"
	"voxclone/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check tools, directories and Python packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			report := newStatusReport(out)
			if ctx.configPath != "" {
				report.note(fmt.Sprintf("Config: %s", ctx.configPath))
			}

			report.section("Environment")
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				report.status(r.Name, kind, r.Detail)
			}

			report.section("Python packages")
			guard := deps.NewGuard(cfg.PythonBinary(), time.Duration(cfg.Python.InstallTimeout)*time.Second, logging.NewNop())
			if len(cfg.Python.Packages) == 0 {
				report.status("packages", statusInfo, "none configured")
			}
			for _, pkg := range cfg.Python.Packages {
				if guard.Present(cmd.Context(), pkg) {
					report.status(pkg, statusOK, "importable")
				} else {
					report.status(pkg, statusWarn, "missing; installed on the next run")
				}
			}

			report.section("Stages")
			defs, defErr := stage.Definitions(cfg)
			if defErr != nil {
				report.status("stage manifest", statusError, defErr.Error())
			}
			for _, def := range defs {
				command := strings.TrimSpace(def.Command + " " + strings.Join(def.Args, " "))
				report.status(fmt.Sprintf("%d %s", def.Ordinal(), def.Name.Label()), statusInfo, command)
			}

			fmt.Fprintln(out, report.String())

			if err := preflight.Err(results); err != nil {
				return &exitError{code: pipeline.ExitCode(err), err: err}
			}
			if defErr != nil {
				err := services.Wrap(services.ErrConfiguration, "", "stage definitions", "", defErr)
				return &exitError{code: pipeline.ExitCode(err), err: err}
			}
			return nil
		},
	}
}
