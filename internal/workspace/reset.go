package workspace

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"voxclone/internal/logging"
	"voxclone/internal/services"
)

// Reset empties every directory in dirs, creating any that are missing.
// It stops at the first directory that cannot be removed or recreated; the
// returned error wraps services.ErrWorkspace.
func Reset(ctx context.Context, dirs []string, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "workspace")
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return services.Wrap(services.ErrWorkspace, "", "reset", "empty directory path", nil)
		}
		if err := resetDir(dir); err != nil {
			logging.ErrorWithContext(logger, "workspace reset failed", "workspace_reset_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "close programs holding files in the directory and check permissions"),
			)
			return services.Wrap(services.ErrWorkspace, "", "reset", dir, err)
		}
		logger.Debug("workspace directory reset",
			logging.String("path", dir),
			logging.String(logging.FieldEventType, "workspace_reset"),
		)
	}
	return nil
}

func resetDir(dir string) error {
	info, err := os.Lstat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case !info.IsDir():
		return &fs.PathError{Op: "reset", Path: dir, Err: errors.New("not a directory")}
	default:
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return os.MkdirAll(dir, 0o755)
}
