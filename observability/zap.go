package observability

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// ZapObserver writes events to a zap.Logger. Levels are mapped through
// Level.ZapLevel; Data keys are emitted as fields in sorted order so log lines
// for the same event always look the same.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates a ZapObserver. A nil logger is replaced by zap.NewNop.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapObserver{logger: logger}
}

func (o *ZapObserver) OnEvent(_ context.Context, event Event) {
	ce := o.logger.Check(event.Level.ZapLevel(), string(event.Type))
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("source", event.Source))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Data[k]))
	}

	ce.Write(fields...)
}
