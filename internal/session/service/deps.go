// Package service implements the session core: device-binding validation, full local sign-out and
// the session recovery loop.
package service

import (
	"context"
	"time"

	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

// Credentials is the minimal credential and session service needed by the session core.
type Credentials interface {
	GetSession(ctx context.Context) (*identitydomain.Session, error)
	RefreshSession(ctx context.Context) (*identitydomain.Session, error)
	SignOut(ctx context.Context) error
}

// AuthEvents is the auth-state change feed.
type AuthEvents interface {
	Subscribe() (<-chan identitydomain.AuthEvent, func())
}

// ProfileRepo is the minimal profile store needed by the session core.
type ProfileRepo interface {
	GetByID(ctx context.Context, userID string) (*profiledomain.Profile, error)
	ClearDevice(ctx context.Context, userID, expectedDeviceID string) error
}

// DeviceIDs is the local device identity store.
type DeviceIDs interface {
	GetDeviceID(ctx context.Context) (string, error)
	ClearDeviceID(ctx context.Context) error
}

// sessionTimeout bounds the remote calls of one validation or sign-out.
const sessionTimeout = 15 * time.Second
