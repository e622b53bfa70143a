package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamConfig controls where a StreamObserver publishes.
type StreamConfig struct {
	// Stream is the Redis stream key (default "stategraph:events").
	Stream string

	// MaxLen caps the stream length with approximate trimming (0 = no cap).
	MaxLen int64

	// PublishTimeout bounds a single XADD (default 2s).
	PublishTimeout time.Duration
}

// StreamObserver publishes events to a Redis stream so dashboards and other
// processes can follow runs live. A failed publish is counted and dropped;
// it never reaches the engine.
type StreamObserver struct {
	client  redis.Cmdable
	cfg     StreamConfig
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewStreamObserver creates a StreamObserver on the given client.
func NewStreamObserver(client redis.Cmdable, cfg StreamConfig) *StreamObserver {
	if cfg.Stream == "" {
		cfg.Stream = "stategraph:events"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &StreamObserver{client: client, cfg: cfg}
}

func (o *StreamObserver) OnEvent(ctx context.Context, event Event) {
	values, err := streamValues(event)
	if err != nil {
		o.dropped.Add(1)
		return
	}

	// The run context may already be cancelled when the final events fire.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PublishTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: o.cfg.Stream,
		Values: values,
	}
	if o.cfg.MaxLen > 0 {
		args.MaxLen = o.cfg.MaxLen
		args.Approx = true
	}

	if err := o.client.XAdd(pubCtx, args).Err(); err != nil {
		o.dropped.Add(1)
		return
	}
	o.sent.Add(1)
}

// Published reports how many events reached the stream.
func (o *StreamObserver) Published() int64 {
	return o.sent.Load()
}

// Dropped reports how many events could not be encoded or published.
func (o *StreamObserver) Dropped() int64 {
	return o.dropped.Load()
}

// streamValues flattens an event into stream entry fields. Data travels as a
// JSON document so consumers do not need to know the schema of each type.
func streamValues(event Event) (map[string]any, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return map[string]any{
		"type":      string(event.Type),
		"level":     event.Level.String(),
		"source":    event.Source,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"data":      string(data),
	}, nil
}
