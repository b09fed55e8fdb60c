package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/liveness"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/retry"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

// ErrRefreshInFlight is returned by Refresh when another refresh is already running.
var ErrRefreshInFlight = errors.New("session refresh already in flight")

const targetSession = "session"

const tracerName = "secure-reader/session"

// RecoveryConfig tunes the recovery loop.
type RecoveryConfig struct {
	// Lookahead refreshes a session expiring within this window.
	Lookahead time.Duration
	// DwellThreshold is the minimum hidden time before becoming visible triggers a refresh.
	DwellThreshold time.Duration
	// Interval is the periodic check while visible.
	Interval time.Duration
	Policy   retry.Policy
}

// DefaultRecoveryConfig is 5m lookahead, 30s dwell, 2m interval, 3 attempts 1s apart.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Lookahead:      5 * time.Minute,
		DwellThreshold: 30 * time.Second,
		Interval:       2 * time.Minute,
		Policy:         retry.DefaultPolicy(),
	}
}

// SessionSource is the part of Credentials the recovery loop uses.
type SessionSource interface {
	GetSession(ctx context.Context) (*identitydomain.Session, error)
	RefreshSession(ctx context.Context) (*identitydomain.Session, error)
}

// Recovery keeps the auth session fresh. It is a liveness.Target.
type Recovery struct {
	creds  SessionSource
	state  *appstate.Store
	sink   *telemetry.Sink
	log    *slog.Logger
	cfg    RecoveryConfig
	nowF   func() time.Time
	tracer trace.Tracer

	refreshing atomic.Bool

	// OnFailure, if set, is called with the final error when a refresh exhausts its retries.
	OnFailure func(error)
}

// NewRecovery returns a Recovery. sink may be nil.
func NewRecovery(creds SessionSource, state *appstate.Store, cfg RecoveryConfig, sink *telemetry.Sink, log *slog.Logger) *Recovery {
	return &Recovery{
		creds:  creds,
		state:  state,
		sink:   sink,
		log:    logging.OrDefault(log),
		cfg:    cfg,
		nowF:   time.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// EnsureSession makes one attempt to have a session that does not expire within the lookahead:
// absent means refresh, expiring means refresh, otherwise the current session is returned.
// Returns identitydomain.ErrNoSession when signed out.
func (r *Recovery) EnsureSession(ctx context.Context) (*identitydomain.Session, error) {
	s, err := r.creds.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s != nil && !s.ExpiresWithin(r.nowF(), r.cfg.Lookahead) {
		return s, nil
	}
	r.sink.M().RefreshAttempt(ctx, targetSession)
	return r.creds.RefreshSession(ctx)
}

// Refresh runs EnsureSession under the retry policy. At most one Refresh runs at a time; a
// concurrent call returns ErrRefreshInFlight without doing anything. Exhaustion marks the session
// stale, reports through OnFailure and returns the error.
func (r *Recovery) Refresh(ctx context.Context) error {
	if !r.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer r.refreshing.Store(false)

	ctx, span := r.tracer.Start(ctx, "session.refresh")
	defer span.End()

	policy := r.cfg.Policy
	policy.OnRetry = func(attempt int, err error) {
		r.log.Warn("session refresh failed; retrying", "attempt", attempt, "error", err)
	}
	attempts := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		_, err := r.EnsureSession(ctx)
		switch {
		case errors.Is(err, identitydomain.ErrNoSession), errors.Is(err, identitydomain.ErrRefreshRejected):
			return retry.Permanent(err)
		}
		return err
	})
	span.SetAttributes(attribute.Int("attempts", attempts))

	switch {
	case err == nil:
		if r.state.State().SessionStale {
			r.state.Dispatch(appstate.SessionRefreshed{})
		}
		return nil
	case errors.Is(err, identitydomain.ErrNoSession):
		// Signed out: nothing to recover.
		return err
	case ctx.Err() != nil:
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "session refresh exhausted")
	r.log.Error("session refresh gave up", "attempts", attempts, "error", err)
	r.sink.M().RefreshExhausted(ctx, targetSession)
	r.sink.Emit(telemetry.NewEvent(telemetry.EventSessionRefreshExhausted, "", "", map[string]string{"error": err.Error()}))
	r.state.Dispatch(appstate.RefreshExhausted{Err: err})
	if r.OnFailure != nil {
		r.OnFailure(err)
	}
	return err
}

// Name implements liveness.Target.
func (r *Recovery) Name() string { return targetSession }

// Interval implements liveness.Target.
func (r *Recovery) Interval() time.Duration { return r.cfg.Interval }

// Check implements liveness.Target. Becoming visible refreshes only after a hidden period longer
// than the dwell threshold; focus, online and ticks always run an attempt.
func (r *Recovery) Check(ctx context.Context, t liveness.Trigger) {
	if t.Kind == liveness.TriggerVisible && t.HiddenFor <= r.cfg.DwellThreshold {
		return
	}
	err := r.Refresh(ctx)
	if errors.Is(err, ErrRefreshInFlight) {
		r.log.Debug("session check skipped; refresh in flight", "trigger", string(t.Kind))
	}
}
