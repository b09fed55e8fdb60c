package domain

import (
	"errors"
	"time"
)

// Role is the profile role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Profile is the server-owned user record. ActiveDeviceID is the session binding: the only installation
// allowed to hold this user's session, or nil when unbound.
type Profile struct {
	ID             string
	Email          string
	Role           Role
	HasAccess      bool
	ActiveDeviceID *string
	LastLoginAt    *time.Time
}

// BoundDevice returns the bound device id, or "" when unbound.
func (p *Profile) BoundDevice() string {
	if p == nil || p.ActiveDeviceID == nil {
		return ""
	}
	return *p.ActiveDeviceID
}

// BoundElsewhere reports whether the profile is bound to a device other than deviceID.
// An unbound profile is never bound elsewhere.
func (p *Profile) BoundElsewhere(deviceID string) bool {
	bound := p.BoundDevice()
	return bound != "" && bound != deviceID
}

// Validate validates the profile as read from a store. Returns an error describing the first failure.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	switch p.Role {
	case RoleAdmin, RoleUser:
	case "":
		p.Role = RoleUser
	default:
		return errors.New("profile role must be admin or user")
	}
	return nil
}
