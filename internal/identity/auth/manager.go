// Package auth holds the current credential-service session for the process, persists it in the
// local store and broadcasts auth-state changes to subscribers.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/storage"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "auth.session"

const subscriberBuffer = 8

// Provider is the remote credential service.
type Provider interface {
	PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error)
	RefreshGrant(ctx context.Context, refreshToken string) (*domain.Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// Manager implements the credential and session service consumed by the session core.
type Manager struct {
	provider Provider
	kv       storage.KV
	log      *slog.Logger

	mu      sync.RWMutex
	session *domain.Session

	// refreshMu serializes refresh grants; refresh tokens are single use.
	refreshMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan domain.AuthEvent
	nextID int
}

// NewManager returns a Manager. kv may be nil for an in-memory session only.
func NewManager(provider Provider, kv storage.KV, log *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		kv:       kv,
		log:      logging.OrDefault(log),
		subs:     make(map[int]chan domain.AuthEvent),
	}
}

// Restore loads a persisted session, if any, and publishes it as the initial session.
func (m *Manager) Restore(ctx context.Context) (*domain.Session, error) {
	if m.kv == nil {
		return nil, nil
	}
	raw, ok, err := m.kv.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.AccessToken == "" {
		m.log.Warn("discarding unreadable persisted session")
		_ = m.kv.Delete(ctx, SessionKey)
		return nil, nil
	}
	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	m.publish(domain.AuthEvent{Type: domain.AuthEventInitialSession, Session: copySession(&s)})
	return copySession(&s), nil
}

// SignInWithPassword authenticates and replaces the current session.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	s, err := m.provider.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.set(ctx, s); err != nil {
		return nil, err
	}
	m.publish(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: copySession(s)})
	return copySession(s), nil
}

// GetSession returns the current session, or nil if signed out.
func (m *Manager) GetSession(ctx context.Context) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.session), nil
}

// AccessToken returns the current access token, or domain.ErrNoSession.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return "", domain.ErrNoSession
	}
	return m.session.AccessToken, nil
}

// RefreshSession exchanges the refresh token for a new session and publishes TokenRefreshed.
// Returns domain.ErrNoSession when there is nothing to refresh.
func (m *Manager) RefreshSession(ctx context.Context) (*domain.Session, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	cur := copySession(m.session)
	m.mu.RUnlock()
	if cur == nil || cur.RefreshToken == "" {
		return nil, domain.ErrNoSession
	}
	s, err := m.provider.RefreshGrant(ctx, cur.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Only replace the session the grant was issued for. A sign-out, or a sign-out followed by
	// a new sign-in, while the grant was in flight wins.
	m.mu.Lock()
	switch {
	case m.session == nil:
		m.mu.Unlock()
		return nil, domain.ErrNoSession
	case m.session.RefreshToken != cur.RefreshToken:
		latest := copySession(m.session)
		m.mu.Unlock()
		m.log.Debug("refreshed session superseded; discarding it")
		return latest, nil
	}
	err = m.setLocked(ctx, s)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.publish(domain.AuthEvent{Type: domain.AuthEventTokenRefreshed, Session: copySession(s)})
	return copySession(s), nil
}

// SignOut drops the local session and revokes it remotely. The remote call is best effort.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	cur := m.session
	m.session = nil
	var delErr error
	if m.kv != nil {
		delErr = m.kv.Delete(ctx, SessionKey)
	}
	m.mu.Unlock()

	if cur != nil {
		if err := m.provider.Logout(ctx, cur.AccessToken); err != nil {
			m.log.Warn("remote sign out failed", "error", err)
		}
	}
	if delErr != nil {
		return fmt.Errorf("delete persisted session: %w", delErr)
	}
	m.publish(domain.AuthEvent{Type: domain.AuthEventSignedOut})
	return nil
}

// Subscribe returns a channel of auth events and a func that unsubscribes and closes it.
// Slow subscribers miss events rather than block publishers.
func (m *Manager) Subscribe() (<-chan domain.AuthEvent, func()) {
	ch := make(chan domain.AuthEvent, subscriberBuffer)
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) set(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(ctx, s)
}

// setLocked replaces and persists the session. The caller holds m.mu so the stored copy and the
// in-memory one change together.
func (m *Manager) setLocked(ctx context.Context, s *domain.Session) error {
	m.session = copySession(s)
	if m.kv == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := m.kv.Set(ctx, SessionKey, string(raw)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (m *Manager) publish(ev domain.AuthEvent) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.log.Warn("auth event dropped for slow subscriber", "type", string(ev.Type))
		}
	}
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
