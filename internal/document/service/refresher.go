// Package service keeps a signed document URL fresh while a document is open.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/document/domain"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/liveness"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/retry"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

// ErrRefreshInFlight is returned by Refresh when this refresher is already refreshing.
var ErrRefreshInFlight = errors.New("url refresh already in flight")

// Issuer issues signed document URLs.
type Issuer interface {
	IssueSignedURL(ctx context.Context, accessToken string, req domain.Request) (domain.SignedURL, error)
}

// SessionEnsurer returns a session that is valid now, refreshing it if needed.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) (*identitydomain.Session, error)
}

// DeviceIDs is the local device identity store.
type DeviceIDs interface {
	GetDeviceID(ctx context.Context) (string, error)
}

// Config tunes a URLRefresher.
type Config struct {
	// Interval is the periodic expiry check.
	Interval time.Duration
	// Threshold refreshes a URL expiring within this window.
	Threshold time.Duration
	// HiddenThreshold refreshes on becoming visible after a longer hidden period.
	HiddenThreshold time.Duration
	Policy          retry.Policy
}

// DefaultConfig is a 30s check, 1m threshold, 1m hidden threshold, 3 attempts 1s apart.
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		Threshold:       time.Minute,
		HiddenThreshold: time.Minute,
		Policy:          retry.DefaultPolicy(),
	}
}

// URLRefresher owns the signed URL of one document page. It is a liveness.Target.
type URLRefresher struct {
	contentID string
	page      int
	issuer    Issuer
	sessions  SessionEnsurer
	devices   DeviceIDs
	cfg       Config
	sink      *telemetry.Sink
	log       *slog.Logger
	nowF      func() time.Time
	tracer    trace.Tracer

	mu      sync.RWMutex
	current domain.SignedURL

	refreshing atomic.Bool

	// OnRefreshed, if set, receives every new URL.
	OnRefreshed func(domain.SignedURL)
	// OnFailed, if set, receives the final error when a refresh exhausts its retries.
	OnFailed func(error)
}

// NewURLRefresher returns a refresher for contentID/page starting from initial. A zero initial URL
// counts as expired.
func NewURLRefresher(contentID string, page int, initial domain.SignedURL, issuer Issuer, sessions SessionEnsurer, devices DeviceIDs, cfg Config, sink *telemetry.Sink, log *slog.Logger) *URLRefresher {
	return &URLRefresher{
		contentID: contentID,
		page:      page,
		issuer:    issuer,
		sessions:  sessions,
		devices:   devices,
		cfg:       cfg,
		sink:      sink,
		log:       logging.OrDefault(log).With("content_id", contentID, "page", page),
		nowF:      time.Now,
		tracer:    otel.Tracer("secure-reader/document"),
		current:   initial,
	}
}

// Current returns the latest URL.
func (u *URLRefresher) Current() domain.SignedURL {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.current
}

// Refresh obtains a new URL under the retry policy and replaces the current one. At most one Refresh
// runs at a time; a concurrent call returns ErrRefreshInFlight. On exhaustion OnFailed is called and
// the current URL is kept.
func (u *URLRefresher) Refresh(ctx context.Context) error {
	if !u.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer u.refreshing.Store(false)

	ctx, span := u.tracer.Start(ctx, "document.url_refresh", trace.WithAttributes(attribute.String("content_id", u.contentID)))
	defer span.End()

	policy := u.cfg.Policy
	policy.OnRetry = func(attempt int, err error) {
		u.log.Warn("signed url refresh failed; retrying", "attempt", attempt, "error", err)
	}
	var (
		next     domain.SignedURL
		deviceID string
	)
	err := policy.Do(ctx, func(ctx context.Context) error {
		u.sink.M().RefreshAttempt(ctx, "document")
		s, err := u.sessions.EnsureSession(ctx)
		if err != nil {
			if errors.Is(err, identitydomain.ErrNoSession) || errors.Is(err, identitydomain.ErrRefreshRejected) {
				return retry.Permanent(err)
			}
			return err
		}
		if deviceID, err = u.devices.GetDeviceID(ctx); err != nil {
			return err
		}
		next, err = u.issuer.IssueSignedURL(ctx, s.AccessToken, domain.Request{ContentID: u.contentID, DeviceID: deviceID, Page: u.page})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "url refresh failed")
		if ctx.Err() != nil {
			return err
		}
		u.log.Error("signed url refresh gave up", "error", err)
		u.sink.M().RefreshExhausted(ctx, "document")
		u.sink.Emit(telemetry.NewEvent(telemetry.EventURLRefreshFailed, "", deviceID, map[string]string{
			"content_id": u.contentID,
			"page":       strconv.Itoa(u.page),
			"error":      err.Error(),
		}))
		if u.OnFailed != nil {
			u.OnFailed(err)
		}
		return err
	}

	u.mu.Lock()
	u.current = next
	u.mu.Unlock()
	u.sink.M().URLRefreshed(ctx)
	u.log.Debug("signed url refreshed", "expires_at", next.ExpiresAt)
	if u.OnRefreshed != nil {
		u.OnRefreshed(next)
	}
	return nil
}

// Name implements liveness.Target.
func (u *URLRefresher) Name() string { return "document:" + u.contentID }

// Interval implements liveness.Target.
func (u *URLRefresher) Interval() time.Duration { return u.cfg.Interval }

// Check implements liveness.Target. A tick refreshes when the URL expires within the threshold;
// becoming visible refreshes when the URL expired while hidden or the app was hidden longer than
// the hidden threshold. Other triggers are ignored.
func (u *URLRefresher) Check(ctx context.Context, t liveness.Trigger) {
	cur := u.Current()
	now := u.nowF()
	switch t.Kind {
	case liveness.TriggerTick:
		if !cur.ExpiresWithin(now, u.cfg.Threshold) {
			return
		}
	case liveness.TriggerVisible:
		if !cur.Expired(now) && t.HiddenFor <= u.cfg.HiddenThreshold {
			return
		}
	default:
		return
	}
	if err := u.Refresh(ctx); errors.Is(err, ErrRefreshInFlight) {
		u.log.Debug("url check skipped; refresh in flight", "trigger", string(t.Kind))
	}
}
