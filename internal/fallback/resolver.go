package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"voxclone/internal/logging"
	"voxclone/internal/services"
)

// Outcome is the result of consulting the resolver.
type Outcome string

const (
	// OK means the expected artifact already exists.
	OK Outcome = "ok"
	// Applied means a transcoded substitute now stands in for the artifact.
	Applied Outcome = "fallback_applied"
	// Unrecoverable means no substitute could be produced.
	Unrecoverable Outcome = "unrecoverable"
)

// Resolver produces the separation substitute with ffmpeg.
type Resolver struct {
	FFmpeg     string
	SampleRate int
	Channels   int
	Logger     *slog.Logger
}

// NewResolver returns a Resolver producing 16-bit PCM at sampleRate with the
// given channel count.
func NewResolver(ffmpeg string, sampleRate, channels int, logger *slog.Logger) *Resolver {
	return &Resolver{
		FFmpeg:     ffmpeg,
		SampleRate: sampleRate,
		Channels:   channels,
		Logger:     logging.NewComponentLogger(logger, "fallback"),
	}
}

// Resolve ensures expected exists. When it is missing and raw names an
// existing recording, raw is transcoded into expected and Applied is
// returned. Unrecoverable comes with an error wrapping
// services.ErrFallbackUnrecoverable.
func (r *Resolver) Resolve(ctx context.Context, expected, raw string) (Outcome, error) {
	if isNonEmptyFile(expected) {
		return OK, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || !isNonEmptyFile(raw) {
		detail := "no raw source audio available"
		if raw != "" {
			detail = fmt.Sprintf("raw source %s is missing or empty", raw)
		}
		return Unrecoverable, services.Wrap(services.ErrFallbackUnrecoverable, "separation", "fallback", detail, nil)
	}

	logger := r.logger()
	logging.WarnWithContext(logger, "separation artifact missing; transcoding raw source", "fallback_applied",
		logging.String("source", raw),
		logging.String("artifact", filepath.Base(expected)),
		logging.String(logging.FieldImpact, "training uses the unseparated recording"),
		logging.String(logging.FieldErrorHint, "check the separation stage output if background noise matters"),
	)

	if err := r.transcode(ctx, raw, expected); err != nil {
		return Unrecoverable, services.Wrap(services.ErrFallbackUnrecoverable, "separation", "fallback transcode", filepath.Base(raw), err)
	}
	return Applied, nil
}

// Args returns the ffmpeg arguments used to transcode src into dst.
func (r *Resolver) Args(src, dst string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(r.channels()),
		"-ar", strconv.Itoa(r.sampleRate()),
		dst,
	}
}

// transcode writes to a temporary sibling first so a failed or interrupted
// transcode never leaves a truncated artifact behind.
func (r *Resolver) transcode(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp := strings.TrimSuffix(dst, filepath.Ext(dst)) + ".partial" + filepath.Ext(dst)
	ffmpeg := r.FFmpeg
	if strings.TrimSpace(ffmpeg) == "" {
		ffmpeg = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, ffmpeg, r.Args(src, tmp)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg transcode: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if !isNonEmptyFile(tmp) {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg transcode produced no output")
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize transcode: %w", err)
	}
	return nil
}

func (r *Resolver) sampleRate() int {
	if r.SampleRate > 0 {
		return r.SampleRate
	}
	return 44100
}

func (r *Resolver) channels() int {
	if r.Channels > 0 {
		return r.Channels
	}
	return 2
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
