package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long Drain waits for in-flight async emits before telemetry
// providers are shut down. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

var inflight sync.WaitGroup

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged. emitter and event may be nil; EmitAsync then returns without starting a goroutine.
func EmitAsync(emitter EventEmitter, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Warn("telemetry: async emit failed", "event_type", event.EventType, "error", err)
		}
	}()
}

// Drain waits until in-flight async emits finish or timeout elapses. Reports whether they all finished.
func Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
