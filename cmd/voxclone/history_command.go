package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"voxclone/internal/journal"
	"voxclone/internal/stage"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var model string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open run journal: %w", err)
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), journal.Filter{Model: model, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.Model,
					run.Language,
					run.State,
					exitText(run.ExitCode),
					yesNo(run.FallbackApplied),
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					durationText(run.Duration()),
				})
			}
			fmt.Fprintln(out, renderTable([]tableColumn{
				{Title: "Run"},
				{Title: "Model", MaxWidth: 24},
				{Title: "Lang"},
				{Title: "State"},
				{Title: "Exit", Numeric: true},
				{Title: "Fallback"},
				{Title: "Started"},
				{Title: "Duration", Numeric: true},
			}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "n", "", "Only show runs for this model")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the stage results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open run journal: %w", err)
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stages, err := store.Stages(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", run.ID)
			fmt.Fprintf(out, "Model:    %s (%s, %s)\n", run.Model, run.Language, run.Device)
			if run.Source != "" {
				fmt.Fprintf(out, "Source:   %s\n", run.Source)
			}
			fmt.Fprintf(out, "State:    %s (exit %s)\n", run.State, exitText(run.ExitCode))
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", run.ErrorMessage)
			}

			rows := make([][]string, 0, len(stages))
			for _, st := range stages {
				note := ""
				switch {
				case st.Skipped && st.FallbackUsed:
					note = "skipped, fallback"
				case st.Skipped:
					note = "skipped"
				case st.FallbackUsed:
					note = "fallback"
				}
				rows = append(rows, []string{
					strconv.Itoa(st.Ordinal),
					stage.Name(st.Stage).Label(),
					st.Outcome,
					strconv.Itoa(st.ExitCode),
					durationText(st.Elapsed),
					note,
				})
			}
			fmt.Fprintln(out, renderTable([]tableColumn{
				{Title: "#", Numeric: true},
				{Title: "Stage"},
				{Title: "Outcome"},
				{Title: "Exit", Numeric: true},
				{Title: "Elapsed", Numeric: true},
				{Title: "Note"},
			}, rows))
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func durationText(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
