package logging

import (
	"context"
	"log/slog"
	"slices"
)

var _ slog.Handler = (*DedupeHandler)(nil)

// DedupeHandler keeps only the most recent value for each attribute key.
// Loggers are derived per request and per event, and without this the same key could be written many times in one record.
//
// Groups are flattened into dotted key prefixes before reaching the wrapped handler.
type DedupeHandler struct {
	impl  slog.Handler
	group string
	attrs []slog.Attr
}

func NewDedupeHandler(impl slog.Handler) *DedupeHandler {
	if impl == nil {
		panic("nil implementing handler")
	}
	return &DedupeHandler{impl: impl}
}

func (h *DedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.impl.Enabled(ctx, level)
}

func (h *DedupeHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := h.attrs
	if record.NumAttrs() > 0 {
		recordAttrs := make([]slog.Attr, 0, record.NumAttrs())
		record.Attrs(func(attr slog.Attr) bool {
			recordAttrs = append(recordAttrs, attr)
			return true
		})
		attrs = h.merge(recordAttrs)
		record = slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	}
	return h.impl.WithAttrs(attrs).Handle(ctx, record)
}

func (h *DedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &DedupeHandler{
		impl:  h.impl,
		group: h.group,
		attrs: h.merge(attrs),
	}
}

func (h *DedupeHandler) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return h
	}
	return &DedupeHandler{
		impl:  h.impl,
		group: h.prefix() + name,
		attrs: h.attrs,
	}
}

func (h *DedupeHandler) prefix() string {
	if len(h.group) == 0 {
		return ""
	}
	return h.group + "."
}

// merge returns a new slice, so derived handlers never share backing arrays.
func (h *DedupeHandler) merge(attrs []slog.Attr) []slog.Attr {
	merged := slices.Clone(h.attrs)
	prefix := h.prefix()
	for _, attr := range attrs {
		attr.Key = prefix + attr.Key
		idx := slices.IndexFunc(merged, func(a slog.Attr) bool {
			return a.Key == attr.Key
		})
		if idx >= 0 {
			merged[idx] = attr
			continue
		}
		merged = append(merged, attr)
	}
	return merged
}
