package domain

import (
	"errors"
	"time"
)

// SignedURL is a time-limited capability URL for one document page. Replaced wholesale on refresh.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the URL expires before now+d.
func (u SignedURL) ExpiresWithin(now time.Time, d time.Duration) bool {
	return u.ExpiresAt.Sub(now) < d
}

// Expired reports whether the URL has expired at now.
func (u SignedURL) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}

// Request identifies the resource a signed URL is issued for. DeviceID lets the issuer authorize per device.
type Request struct {
	ContentID string
	DeviceID  string
	Page      int
}

// Validate returns an error describing the first missing field.
func (r Request) Validate() error {
	if r.ContentID == "" {
		return errors.New("content id is required")
	}
	if r.DeviceID == "" {
		return errors.New("device id is required")
	}
	if r.Page < 0 {
		return errors.New("page must not be negative")
	}
	return nil
}
