package preflight

import (
	"context"
	"fmt"
	"strings"

	"voxclone/internal/config"
	"voxclone/internal/deps"
	"voxclone/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every environment check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Input directory", cfg.Paths.InputDir, false),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir, true),
		CheckDirectoryAccess("Logs directory", cfg.Paths.LogsDir, true),
		CheckDirectoryAccess("Tools directory", cfg.Paths.ToolsDir, false),
	}
	for _, status := range deps.CheckBinaries(deps.ToolRequirements(cfg.PythonBinary(), cfg.FFmpegBinary())) {
		results = append(results, fromStatus(status))
	}
	results = append(results, CheckPython(ctx, cfg.PythonBinary(), cfg.Paths.ToolsDir))
	return results
}

// Err folds failed results into a single error wrapping
// services.ErrEnvironment, or returns nil when every check passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrEnvironment, "", "preflight", strings.Join(failed, "; "), nil)
}

func fromStatus(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Resolved}
	}
	return Result{Name: status.Name, Passed: status.Optional, Detail: status.Detail}
}
