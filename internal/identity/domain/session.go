package domain

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when there is no session to read or refresh.
	ErrNoSession = errors.New("no auth session")
	// ErrRefreshRejected is returned when the credential service no longer accepts the refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrInvalidCredentials is returned when the credential service rejects an email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is an authenticated credential-service session. Owned by the auth manager; the core
// only reads ExpiresAt and asks for refreshes.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
}

// ExpiresWithin reports whether the session expires before now+d. A zero ExpiresAt is treated as expired.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return true
	}
	return s.ExpiresAt.Before(now.Add(d))
}

// ExpiryFromAccessToken reads the exp claim of a JWT access token without verifying its signature.
// The token is issued by the auth service; the client only needs the expiry to schedule refreshes.
func ExpiryFromAccessToken(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// PendingLogin holds credentials between conflict detection and the user's decision.
// Memory only; never persisted or logged.
type PendingLogin struct {
	Email    string
	Password string
	UserID   string
}

// String redacts the password.
func (p PendingLogin) String() string {
	return "PendingLogin{" + p.Email + "}"
}

// AuthEventType is the kind of auth-state change.
type AuthEventType string

const (
	AuthEventInitialSession AuthEventType = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventType = "SIGNED_IN"
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthEventSignedOut      AuthEventType = "SIGNED_OUT"
)

// AuthEvent is broadcast to subscribers on every auth-state change. Session is nil for SignedOut.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}
