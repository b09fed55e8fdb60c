// Package producer defines the interface for streaming session events (e.g. to Kafka).
package producer

import (
	"context"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

// Producer emits session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; use telemetry.EmitAsync from hot paths.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
