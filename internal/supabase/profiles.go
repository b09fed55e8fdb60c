package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

const profileColumns = "id,email,role,has_access,active_device_id,last_login_at"

// TokenSource supplies the signed-in user's access token for row-level-security requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type profileRow struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	HasAccess      bool       `json:"has_access"`
	ActiveDeviceID *string    `json:"active_device_id"`
	LastLoginAt    *time.Time `json:"last_login_at"`
}

// ProfileClient reads and writes the profiles table through PostgREST.
type ProfileClient struct {
	c      *Client
	tokens TokenSource
}

// NewProfileClient returns a ProfileClient authenticated by tokens.
func NewProfileClient(c *Client, tokens TokenSource) *ProfileClient {
	return &ProfileClient{c: c, tokens: tokens}
}

// GetByID returns the profile for userID, or nil if not found.
func (p *ProfileClient) GetByID(ctx context.Context, userID string) (*domain.Profile, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var rows []profileRow
	err = p.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/profiles",
		query:  url.Values{"id": {"eq." + userID}, "select": {profileColumns}},
		bearer: token,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	prof := &domain.Profile{
		ID:             r.ID,
		Email:          r.Email,
		Role:           domain.Role(r.Role),
		HasAccess:      r.HasAccess,
		ActiveDeviceID: r.ActiveDeviceID,
		LastLoginAt:    r.LastLoginAt,
	}
	if err := prof.Validate(); err != nil {
		return nil, fmt.Errorf("supabase: profile %s: %w", userID, err)
	}
	return prof, nil
}

// BindDevice sets active_device_id and last_login_at unconditionally.
func (p *ProfileClient) BindDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	return p.patch(ctx, url.Values{"id": {"eq." + userID}}, map[string]any{
		"active_device_id": deviceID,
		"last_login_at":    at.UTC().Format(time.RFC3339Nano),
	})
}

// ClearDevice nulls active_device_id only while it still equals expectedDeviceID.
func (p *ProfileClient) ClearDevice(ctx context.Context, userID, expectedDeviceID string) error {
	return p.patch(ctx, url.Values{
		"id":               {"eq." + userID},
		"active_device_id": {"eq." + expectedDeviceID},
	}, map[string]any{"active_device_id": nil})
}

func (p *ProfileClient) patch(ctx context.Context, filter url.Values, body map[string]any) error {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	return p.c.do(ctx, request{
		method:  http.MethodPatch,
		path:    "/rest/v1/profiles",
		query:   filter,
		bearer:  token,
		body:    body,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
}
