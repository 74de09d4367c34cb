package log

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends every record to all handlers
type teeHandler struct {
	handlers []slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, sub := range h.handlers {
		if !sub.Enabled(ctx, r.Level) {
			continue
		}
		if err := sub.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := &teeHandler{}
	for _, sub := range h.handlers {
		res.handlers = append(res.handlers, sub.WithAttrs(attrs))
	}
	return res
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	res := &teeHandler{}
	for _, sub := range h.handlers {
		res.handlers = append(res.handlers, sub.WithGroup(name))
	}
	return res
}
