// Package supabase implements the reader's remote collaborators over the Supabase HTTP APIs:
// GoTrue for credentials, PostgREST for profiles and an edge function for signed document URLs.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

var (
	ErrUnauthorized = errors.New("supabase: unauthorized")
	ErrRateLimited  = errors.New("supabase: rate limited")
)

// APIError is a non-2xx response. Unwrap maps 401/403 to ErrUnauthorized and 429 to ErrRateLimited.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: status=%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// errorBody covers the GoTrue, PostgREST and edge function error shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// Client is the shared HTTP transport for one Supabase project.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// NewClient returns a client for the project at baseURL using the public anon key.
func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		AnonKey:    anonKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type request struct {
	method  string
	path    string
	query   url.Values
	bearer  string
	body    any
	headers map[string]string
}

// do sends r and decodes a JSON response into out (if non-nil). The anon key is the bearer when r.bearer is empty.
func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return err
	}
	bearer := r.bearer
	if bearer == "" {
		bearer = c.AnonKey
	}
	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
		apiErr.Message = firstNonEmpty(eb.ErrorDescription, eb.Msg, eb.Message, eb.Error)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// statusOf returns the HTTP status of an APIError in err's chain, or 0.
func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
