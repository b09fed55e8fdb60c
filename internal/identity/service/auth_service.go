package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

// Sentinel errors for the auth service; the CLI maps them to messages.
var (
	ErrInvalidCredentials = identitydomain.ErrInvalidCredentials
	ErrNoPendingLogin     = errors.New("no pending login to confirm")
	ErrConfirmInFlight    = appstate.ErrSignInInFlight
	ErrProfileNotFound    = errors.New("profile not found")
)

// SignInResult is the outcome of SignIn or ConfirmLoginOnThisDevice. When Conflict is true the
// account is bound to another device, Session is nil and the credentials are held pending the
// user's decision.
type SignInResult struct {
	Session  *identitydomain.Session
	Profile  *profiledomain.Profile
	Conflict bool
}

// Credentials is the minimal credential service needed by the auth service.
type Credentials interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identitydomain.Session, error)
	SignOut(ctx context.Context) error
}

// ProfileRepo is the minimal profile store needed by the auth service.
type ProfileRepo interface {
	GetByID(ctx context.Context, userID string) (*profiledomain.Profile, error)
	BindDevice(ctx context.Context, userID, deviceID string, at time.Time) error
}

// DeviceIDs is the local device identity store.
type DeviceIDs interface {
	GetDeviceID(ctx context.Context) (string, error)
}

// LocalSignOut performs a full local sign-out for userID ("" for the current session).
type LocalSignOut interface {
	SignOut(ctx context.Context, userID string) error
}

// AuthService implements password sign-in with single-active-device binding and conflict resolution.
type AuthService struct {
	creds    Credentials
	profiles ProfileRepo
	devices  DeviceIDs
	local    LocalSignOut
	state    *appstate.Store
	sink     *telemetry.Sink
	log      *slog.Logger
	nowF     func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. sink may be nil.
func NewAuthService(
	creds Credentials,
	profiles ProfileRepo,
	devices DeviceIDs,
	local LocalSignOut,
	state *appstate.Store,
	sink *telemetry.Sink,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		creds:    creds,
		profiles: profiles,
		devices:  devices,
		local:    local,
		state:    state,
		sink:     sink,
		log:      logging.OrDefault(log),
		nowF:     time.Now,
	}
}

// SignIn authenticates and binds the account to this device. If the account is bound to another
// device the fresh session is dropped, the credentials are held and a Conflict result is returned
// without error.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	s.state.Dispatch(appstate.SignInStarted{})
	res, err := s.signIn(ctx, email, password, false)
	if err != nil {
		s.state.Dispatch(appstate.SignInFailed{Err: err})
		return nil, err
	}
	return res, nil
}

// ConfirmLoginOnThisDevice re-authenticates with the held credentials and takes the binding over
// from the other device. Returns ErrNoPendingLogin when no conflict is pending and
// ErrConfirmInFlight while another confirm is running.
func (s *AuthService) ConfirmLoginOnThisDevice(ctx context.Context) (*SignInResult, error) {
	pending, err := s.state.BeginTakeover()
	switch {
	case errors.Is(err, appstate.ErrSignInInFlight):
		return nil, ErrConfirmInFlight
	case err != nil:
		return nil, ErrNoPendingLogin
	}
	res, err := s.signIn(ctx, pending.Email, pending.Password, true)
	if err != nil {
		s.state.Dispatch(appstate.SignInFailed{Err: err})
		return nil, err
	}
	return res, nil
}

// CancelDeviceConflict discards the held credentials and returns to idle.
func (s *AuthService) CancelDeviceConflict() {
	s.state.Dispatch(appstate.ConflictCancelled{})
}

// SignOut is the user-initiated sign-out.
func (s *AuthService) SignOut(ctx context.Context) error {
	return s.local.SignOut(ctx, "")
}

func (s *AuthService) signIn(ctx context.Context, email, password string, takeover bool) (*SignInResult, error) {
	sess, err := s.creds.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByID(ctx, sess.UserID)
	if err == nil && profile == nil {
		err = ErrProfileNotFound
	}
	if err != nil {
		s.dropSession(ctx)
		return nil, err
	}
	local, err := s.devices.GetDeviceID(ctx)
	if err != nil {
		s.dropSession(ctx)
		return nil, err
	}

	previous := profile.BoundDevice()
	if !takeover && profile.BoundElsewhere(local) {
		// Drop the session before publishing the conflict so no binding check sees it.
		s.dropSession(ctx)
		s.state.Dispatch(appstate.ConflictDetected{Pending: identitydomain.PendingLogin{
			Email:    email,
			Password: password,
			UserID:   profile.ID,
		}})
		s.log.Info("account bound to another device", "user_id", profile.ID)
		s.sink.M().Conflict(ctx)
		s.sink.Emit(telemetry.NewEvent(telemetry.EventDeviceConflict, profile.ID, local, map[string]string{"bound_device": previous}))
		return &SignInResult{Profile: profile, Conflict: true}, nil
	}

	now := s.nowF().UTC()
	if err := s.profiles.BindDevice(ctx, profile.ID, local, now); err != nil {
		s.dropSession(ctx)
		return nil, err
	}
	profile.ActiveDeviceID = &local
	profile.LastLoginAt = &now

	if takeover {
		s.state.Dispatch(appstate.ConflictConfirmed{})
		if previous != "" && previous != local {
			s.log.Info("session taken over from another device", "user_id", profile.ID)
			s.sink.M().Takeover(ctx)
			s.sink.Emit(telemetry.NewEvent(telemetry.EventDeviceTakeover, profile.ID, local, map[string]string{"previous_device": previous}))
		}
	} else {
		s.state.Dispatch(appstate.SignedIn{})
	}
	return &SignInResult{Session: sess, Profile: profile}, nil
}

func (s *AuthService) dropSession(ctx context.Context) {
	if err := s.creds.SignOut(ctx); err != nil {
		s.log.Warn("dropping fresh session failed", "error", err)
	}
}
