package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends each record to the console handler and to the run log
// handler. Each side applies its own level.
type teeHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var consoleErr, fileErr error
	if h.console.Enabled(ctx, record.Level) {
		consoleErr = h.console.Handle(ctx, record.Clone())
	}
	if h.file.Enabled(ctx, record.Level) {
		fileErr = h.file.Handle(ctx, record)
	}
	return errors.Join(consoleErr, fileErr)
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{console: h.console.WithAttrs(attrs), file: h.file.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{console: h.console.WithGroup(name), file: h.file.WithGroup(name)}
}

// TeeLogger returns a logger writing to base and to each of handlers. Nil
// entries are ignored.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	var out slog.Handler = NoopHandler{}
	if base != nil {
		out = base.Handler()
	}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if _, noop := out.(NoopHandler); noop {
			out = h
			continue
		}
		out = teeHandler{console: out, file: h}
	}
	return slog.New(out)
}
