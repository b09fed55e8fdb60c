// Package liveness multiplexes environment signals (visibility, focus, connectivity) and periodic
// ticks onto registered refresh targets.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
)

// Signal is an environment change reported by the host.
type Signal int

const (
	Visible Signal = iota + 1
	Hidden
	Focus
	Online
)

func (s Signal) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	case Focus:
		return "focus"
	case Online:
		return "online"
	}
	return "unknown"
}

// TriggerKind says why a target is being checked.
type TriggerKind string

const (
	TriggerTick    TriggerKind = "tick"
	TriggerVisible TriggerKind = "visible"
	TriggerFocus   TriggerKind = "focus"
	TriggerOnline  TriggerKind = "online"
)

// Trigger is passed to Target.Check. HiddenFor is set for TriggerVisible.
type Trigger struct {
	Kind      TriggerKind
	HiddenFor time.Duration
}

// Target is an expiring artifact kept alive by the watcher.
type Target interface {
	Name() string
	// Interval is the tick period; zero or negative disables ticks.
	Interval() time.Duration
	// Check decides whether to refresh and does so. It must return once the attempt completes or gives up.
	Check(ctx context.Context, t Trigger)
}

const signalBuffer = 16

type entry struct {
	target  Target
	next    time.Time
	running atomic.Bool
}

// Watcher delivers triggers to targets. Ticks are suppressed while hidden. A target with a check in
// flight does not receive another trigger until it returns.
type Watcher struct {
	log     *slog.Logger
	nowF    func() time.Time
	signals chan Signal
	changed chan struct{}

	mu          sync.Mutex
	targets     map[int]*entry
	nextID      int
	visible     bool
	hiddenSince time.Time

	inflight sync.WaitGroup
}

// NewWatcher returns a watcher that starts in the visible state.
func NewWatcher(log *slog.Logger) *Watcher {
	return &Watcher{
		log:     logging.OrDefault(log),
		nowF:    time.Now,
		signals: make(chan Signal, signalBuffer),
		changed: make(chan struct{}, 1),
		targets: make(map[int]*entry),
		visible: true,
	}
}

// Register adds t and returns a func that removes it. Safe to call before or during Run.
// A target with an interval gets its first tick immediately, then one per interval.
func (w *Watcher) Register(t Target) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	e := &entry{target: t}
	if t.Interval() > 0 {
		e.next = w.nowF()
	}
	w.targets[id] = e
	w.mu.Unlock()
	w.poke()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.targets, id)
			w.mu.Unlock()
			w.poke()
		})
	}
}

// Notify reports a signal. It never blocks; if the buffer is full the signal is dropped.
func (w *Watcher) Notify(s Signal) {
	select {
	case w.signals <- s:
	default:
		w.log.Warn("liveness signal dropped", "signal", s.String())
	}
}

// Visible reports the current visibility state.
func (w *Watcher) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Run delivers triggers until ctx is cancelled. Checks already dispatched keep running; use Wait to
// block until they finish.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := w.tick(ctx)
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-w.signals:
			w.handle(ctx, s)
		case <-w.changed:
		case <-timer.C:
		}
	}
}

// Wait blocks until all dispatched checks return.
func (w *Watcher) Wait() {
	w.inflight.Wait()
}

func (w *Watcher) poke() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// tick dispatches due ticks and returns the time until the next one.
func (w *Watcher) tick(ctx context.Context) time.Duration {
	now := w.nowF()
	wait := time.Hour

	w.mu.Lock()
	visible := w.visible
	var due []*entry
	for _, e := range w.targets {
		iv := e.target.Interval()
		if iv <= 0 {
			continue
		}
		if e.next.IsZero() {
			e.next = now.Add(iv)
		}
		if !now.Before(e.next) {
			due = append(due, e)
			e.next = now.Add(iv)
		}
		if d := e.next.Sub(now); d < wait {
			wait = d
		}
	}
	w.mu.Unlock()

	if visible {
		for _, e := range due {
			w.dispatch(ctx, e, Trigger{Kind: TriggerTick})
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (w *Watcher) handle(ctx context.Context, s Signal) {
	now := w.nowF()
	var trig Trigger

	w.mu.Lock()
	switch s {
	case Hidden:
		if w.visible {
			w.visible = false
			w.hiddenSince = now
		}
		w.mu.Unlock()
		return
	case Visible:
		if w.visible {
			w.mu.Unlock()
			return
		}
		w.visible = true
		trig = Trigger{Kind: TriggerVisible, HiddenFor: now.Sub(w.hiddenSince)}
	case Focus:
		trig = Trigger{Kind: TriggerFocus}
	case Online:
		trig = Trigger{Kind: TriggerOnline}
	default:
		w.mu.Unlock()
		return
	}
	entries := make([]*entry, 0, len(w.targets))
	for _, e := range w.targets {
		entries = append(entries, e)
	}
	w.mu.Unlock()

	for _, e := range entries {
		w.dispatch(ctx, e, trig)
	}
}

func (w *Watcher) dispatch(ctx context.Context, e *entry, trig Trigger) {
	if !e.running.CompareAndSwap(false, true) {
		w.log.Debug("check already running; trigger dropped", "target", e.target.Name(), "trigger", string(trig.Kind))
		return
	}
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer e.running.Store(false)
		e.target.Check(context.WithoutCancel(ctx), trig)
	}()
}
