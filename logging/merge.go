package logging

import (
	"context"
	"errors"
	"log/slog"
)

var _ slog.Handler = (multiHandler)(nil)

type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range m {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(multiHandler, len(m))
	for i, h := range m {
		derived[i] = h.WithAttrs(attrs)
	}
	return derived
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	derived := make(multiHandler, len(m))
	for i, h := range m {
		derived[i] = h.WithGroup(name)
	}
	return derived
}

// MergeHandlers sends every record to all the given handlers, each filtering by its own level.
func MergeHandlers(a, b slog.Handler, others ...slog.Handler) slog.Handler {
	merged := multiHandler{a, b}
	return append(merged, others...)
}
