package repository

import (
	"context"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

// Repository defines reads and session-binding writes on user profiles.
type Repository interface {
	// GetByID returns the profile for userID, or nil if not found.
	GetByID(ctx context.Context, userID string) (*domain.Profile, error)
	// BindDevice unconditionally sets active_device_id and last_login_at. Last writer wins.
	BindDevice(ctx context.Context, userID, deviceID string, at time.Time) error
	// ClearDevice clears active_device_id only while it still equals expectedDeviceID.
	ClearDevice(ctx context.Context, userID, expectedDeviceID string) error
}
