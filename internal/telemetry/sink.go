package telemetry

// Sink bundles the event emitter and counters handed to session components. The zero value and a
// nil *Sink are valid and record nothing.
type Sink struct {
	Emitter EventEmitter
	Metrics *Metrics
}

// Emit sends event asynchronously.
func (s *Sink) Emit(event *Event) {
	if s == nil {
		return
	}
	EmitAsync(s.Emitter, event)
}

// M returns the counters; nil-safe.
func (s *Sink) M() *Metrics {
	if s == nil {
		return nil
	}
	return s.Metrics
}
