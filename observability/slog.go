package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// SlogObserver logs engine events through log/slog. It is registered as
// "slog" on slog.Default() and is the observer config selects by default.
//
// Each line reads `<event type> source=<source> <data keys in sorted order>`,
// so two runs of the same graph log identical lines apart from values.
type SlogObserver struct {
	logger *slog.Logger
}

func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for _, key := range slices.Sorted(maps.Keys(event.Data)) {
		attrs = append(attrs, slog.Any(key, event.Data[key]))
	}

	o.logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}
