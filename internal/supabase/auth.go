package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// AuthClient talks to the GoTrue token and logout endpoints.
type AuthClient struct {
	c    *Client
	nowF func() time.Time
}

// NewAuthClient returns an AuthClient on c.
func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c, nowF: time.Now}
}

// PasswordGrant signs in with email and password. A 400 or 401 response wraps domain.ErrInvalidCredentials.
func (a *AuthClient) PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error) {
	var out tokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		switch statusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
		}
		return nil, err
	}
	return a.session(out)
}

// RefreshGrant exchanges a refresh token. A rejected token wraps domain.ErrRefreshRejected.
func (a *AuthClient) RefreshGrant(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var out tokenResponse
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		switch statusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %w", domain.ErrRefreshRejected, err)
		}
		return nil, err
	}
	return a.session(out)
}

// Logout revokes the session owning accessToken. An already invalid token is treated as logged out.
func (a *AuthClient) Logout(ctx context.Context, accessToken string) error {
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
	if statusOf(err) == http.StatusUnauthorized || statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (a *AuthClient) session(out tokenResponse) (*domain.Session, error) {
	if out.AccessToken == "" {
		return nil, fmt.Errorf("supabase: token response without access_token")
	}
	s := &domain.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		UserID:       out.User.ID,
		Email:        out.User.Email,
	}
	switch {
	case out.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(out.ExpiresAt, 0).UTC()
	case out.ExpiresIn > 0:
		s.ExpiresAt = a.nowF().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
	default:
		exp, err := domain.ExpiryFromAccessToken(out.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("supabase: token expiry: %w", err)
		}
		s.ExpiresAt = exp.UTC()
	}
	return s, nil
}
