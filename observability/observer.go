// Package observability carries execution telemetry out of the graph engine.
//
// Every milestone of a run (round boundaries, node attempts, routing decisions,
// checkpoints) is reported as an Event to an Observer. Observers log, count, or
// forward events; they never influence control flow. Level values follow the
// OpenTelemetry SeverityNumber ranges so events translate to OTel log records
// without a lookup table.
package observability

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/zap/zapcore"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8)
	LevelInfo    Level = 9  // OTel INFO (9-12)
	LevelWarning Level = 13 // OTel WARN (13-16)
	LevelError   Level = 17 // OTel ERROR (17-20)
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps the level onto the slog level scale.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// ZapLevel maps the level onto the zap level scale.
func (l Level) ZapLevel() zapcore.Level {
	switch {
	case l <= 8:
		return zapcore.DebugLevel
	case l <= 12:
		return zapcore.InfoLevel
	case l <= 16:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// EventType names an event. The engine and state packages define their own
// constants ("run.start", "round.complete", "node.retry", ...).
type EventType string

// Event is a single telemetry record. Fields map to OTel LogRecord fields:
// Type→EventName, Level→SeverityNumber, Timestamp→Timestamp,
// Source→InstrumentationScope, Data→Attributes.
type Event struct {
	Type      EventType      `json:"type"`
	Level     Level          `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
}

// Observer receives events. Implementations must be safe for concurrent use:
// node-level events are emitted from the goroutines executing a round.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}
