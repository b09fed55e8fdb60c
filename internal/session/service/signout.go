package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
)

// Terminator performs a full local sign-out: server binding released if it still names this device,
// credential session ended, local device id cleared, app state reset.
type Terminator struct {
	creds    Credentials
	profiles ProfileRepo
	devices  DeviceIDs
	state    *appstate.Store
	log      *slog.Logger
}

// NewTerminator returns a Terminator.
func NewTerminator(creds Credentials, profiles ProfileRepo, devices DeviceIDs, state *appstate.Store, log *slog.Logger) *Terminator {
	return &Terminator{creds: creds, profiles: profiles, devices: devices, state: state, log: logging.OrDefault(log)}
}

// SignOut signs out userID on this device. If userID is empty it is read from the current session.
// Every step runs even if an earlier one fails; the joined error is returned.
func (t *Terminator) SignOut(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	if userID == "" {
		if s, err := t.creds.GetSession(ctx); err == nil && s != nil {
			userID = s.UserID
		}
	}

	var errs []error
	if userID != "" {
		local, err := t.devices.GetDeviceID(ctx)
		switch {
		case err != nil:
			t.log.Warn("sign out: local device id unavailable; server binding left as is", "error", err)
		default:
			if err := t.profiles.ClearDevice(ctx, userID, local); err != nil {
				t.log.Warn("sign out: release server binding failed", "user_id", userID, "error", err)
				errs = append(errs, err)
			}
		}
	}
	if err := t.creds.SignOut(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.devices.ClearDeviceID(ctx); err != nil {
		errs = append(errs, err)
	}
	t.state.Dispatch(appstate.SignedOut{})
	return errors.Join(errs...)
}
