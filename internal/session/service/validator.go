package service

import (
	"context"
	"log/slog"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

// Validator checks that the server-side session binding still names this device.
type Validator struct {
	creds    Credentials
	profiles ProfileRepo
	devices  DeviceIDs
	state    *appstate.Store
	term     *Terminator
	sink     *telemetry.Sink
	log      *slog.Logger

	// OnInvalidated, if set, is called once per invalidation after local sign-out.
	OnInvalidated func()
}

// NewValidator returns a Validator. sink may be nil.
func NewValidator(creds Credentials, profiles ProfileRepo, devices DeviceIDs, state *appstate.Store, term *Terminator, sink *telemetry.Sink, log *slog.Logger) *Validator {
	return &Validator{
		creds:    creds,
		profiles: profiles,
		devices:  devices,
		state:    state,
		term:     term,
		sink:     sink,
		log:      logging.OrDefault(log),
	}
}

// ValidateSession reports whether profile's binding allows this device to hold the session.
// An unbound profile is valid. A binding to another device is invalid: the first such result signs
// this device out; later ones only report false.
func (v *Validator) ValidateSession(ctx context.Context, profile *profiledomain.Profile) bool {
	st := v.state.State()
	if st.SigningIn {
		return true
	}
	return v.validate(ctx, profile, st.Generation)
}

// Revalidate fetches the current session and profile and validates the binding. A session or profile
// that cannot be fetched is reported as valid: nothing authoritative says otherwise.
func (v *Validator) Revalidate(ctx context.Context) (bool, error) {
	st := v.state.State()
	if st.SigningIn {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	s, err := v.creds.GetSession(ctx)
	if err != nil {
		v.log.Warn("revalidate: session unavailable", "error", err)
		return true, err
	}
	if s == nil {
		return true, nil
	}
	profile, err := v.profiles.GetByID(ctx, s.UserID)
	if err != nil {
		v.log.Warn("revalidate: profile unavailable", "user_id", s.UserID, "error", err)
		return true, err
	}
	if profile == nil {
		return true, nil
	}
	return v.validate(ctx, profile, st.Generation), nil
}

// Watch revalidates on every auth-state change that carries a session, and once at start if a
// session exists. It returns when ctx is cancelled or the event feed closes.
func (v *Validator) Watch(ctx context.Context, events AuthEvents) error {
	ch, unsubscribe := events.Subscribe()
	defer unsubscribe()

	if s, err := v.creds.GetSession(ctx); err == nil && s != nil {
		_, _ = v.Revalidate(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Session == nil || ev.Type == identitydomain.AuthEventSignedOut {
				continue
			}
			_, _ = v.Revalidate(ctx)
		}
	}
}

func (v *Validator) validate(ctx context.Context, profile *profiledomain.Profile, generation uint64) bool {
	bound := profile.BoundDevice()
	if bound == "" {
		return true
	}
	local, err := v.devices.GetDeviceID(ctx)
	if err != nil {
		v.log.Error("validate: local device id unavailable", "error", err)
		return true
	}
	if bound == local {
		return true
	}

	effects := v.state.Dispatch(appstate.DeviceMismatch{Generation: generation})
	for _, e := range effects {
		switch e {
		case appstate.EffectSignOut:
			v.log.Info("session bound to another device; signing out", "user_id", profile.ID)
			v.sink.M().Invalidation(ctx)
			v.sink.Emit(telemetry.NewEvent(telemetry.EventSessionInvalidated, profile.ID, local, map[string]string{"bound_device": bound}))
			if err := v.term.SignOut(ctx, profile.ID); err != nil {
				v.log.Warn("sign out after invalidation incomplete", "error", err)
			}
		case appstate.EffectNotifyInvalidated:
			if v.OnInvalidated != nil {
				v.OnInvalidated()
			}
		}
	}
	return false
}
