package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/document/domain"
)

// SignedURLFunction is the edge function that issues signed document URLs.
const SignedURLFunction = "get-signed-url"

type signedURLRequest struct {
	ContentID string `json:"content_id"`
	DeviceID  string `json:"device_id"`
	Page      int    `json:"page"`
}

type signedURLResponse struct {
	SignedURL string          `json:"signedUrl"`
	ExpiresAt json.RawMessage `json:"expiresAt"`
}

// DocumentClient requests signed document URLs from the issuing edge function.
type DocumentClient struct {
	c *Client
}

// NewDocumentClient returns a DocumentClient on c.
func NewDocumentClient(c *Client) *DocumentClient {
	return &DocumentClient{c: c}
}

// IssueSignedURL asks the issuer for a URL to req's page, authorized for req.DeviceID.
func (d *DocumentClient) IssueSignedURL(ctx context.Context, accessToken string, req domain.Request) (domain.SignedURL, error) {
	if err := req.Validate(); err != nil {
		return domain.SignedURL{}, err
	}
	var out signedURLResponse
	err := d.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/functions/v1/" + SignedURLFunction,
		bearer: accessToken,
		body:   signedURLRequest{ContentID: req.ContentID, DeviceID: req.DeviceID, Page: req.Page},
	}, &out)
	if err != nil {
		return domain.SignedURL{}, err
	}
	if out.SignedURL == "" {
		return domain.SignedURL{}, errors.New("supabase: signed url response without signedUrl")
	}
	exp, err := parseExpiry(out.ExpiresAt)
	if err != nil {
		return domain.SignedURL{}, err
	}
	return domain.SignedURL{URL: out.SignedURL, ExpiresAt: exp}, nil
}

// parseExpiry accepts an RFC 3339 string or a Unix timestamp in seconds or milliseconds.
func parseExpiry(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("supabase: signed url response without expiresAt")
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		raw = json.RawMessage(s)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("supabase: unrecognised expiresAt %s", string(raw))
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
