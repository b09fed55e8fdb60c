package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/appstate"
	devicerepo "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/repository"
	deviceservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/service"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/auth"
	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
	sessionservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/session/service"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/storage"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

const (
	testEmail    = "reader@example.com"
	testPassword = "correct-horse"
	testUserID   = "user-1"
)

// memProvider authenticates one account and counts password grants.
type memProvider struct {
	mu     sync.Mutex
	grants int

	// When gate is set, each password grant signals entered and waits on gate.
	gate    chan struct{}
	entered chan struct{}
}

func (p *memProvider) PasswordGrant(ctx context.Context, email, password string) (*identitydomain.Session, error) {
	p.mu.Lock()
	p.grants++
	gate, entered := p.gate, p.entered
	p.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if email != testEmail || password != testPassword {
		return nil, identitydomain.ErrInvalidCredentials
	}
	return &identitydomain.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		UserID:       testUserID,
		Email:        email,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (p *memProvider) RefreshGrant(ctx context.Context, refreshToken string) (*identitydomain.Session, error) {
	return nil, identitydomain.ErrRefreshRejected
}

func (p *memProvider) Logout(ctx context.Context, accessToken string) error { return nil }

func (p *memProvider) grantCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grants
}

// memProfiles is the shared server-side profile table.
type memProfiles struct {
	mu      sync.Mutex
	byID    map[string]*profiledomain.Profile
	getErr  error
	bindErr error
	binds   int
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byID: map[string]*profiledomain.Profile{
		testUserID: {ID: testUserID, Email: testEmail, Role: profiledomain.RoleUser, HasAccess: true},
	}}
}

func (r *memProfiles) GetByID(ctx context.Context, id string) (*profiledomain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := *p
	if p.ActiveDeviceID != nil {
		d := *p.ActiveDeviceID
		c.ActiveDeviceID = &d
	}
	return &c, nil
}

func (r *memProfiles) BindDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindErr != nil {
		return r.bindErr
	}
	r.binds++
	if p, ok := r.byID[userID]; ok {
		p.ActiveDeviceID = &deviceID
		p.LastLoginAt = &at
	}
	return nil
}

func (r *memProfiles) ClearDevice(ctx context.Context, userID, expected string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[userID]; ok && p.BoundDevice() == expected {
		p.ActiveDeviceID = nil
	}
	return nil
}

func (r *memProfiles) bound() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[testUserID].BoundDevice()
}

// device is one installation of the reader: its own storage, credentials and app state.
type device struct {
	manager   *auth.Manager
	ids       *deviceservice.Store
	state     *appstate.Store
	auth      *AuthService
	validator *sessionservice.Validator
	id        string
}

func newDevice(t *testing.T, provider auth.Provider, profiles *memProfiles) *device {
	t.Helper()
	log := logging.Discard()
	kv := storage.NewMemoryKV()
	manager := auth.NewManager(provider, kv, log)
	ids := deviceservice.NewStore(devicerepo.NewKVRepository(kv), log)
	state := appstate.NewStore()
	term := sessionservice.NewTerminator(manager, profiles, ids, state, log)

	id, err := ids.GetDeviceID(context.Background())
	require.NoError(t, err)

	return &device{
		manager:   manager,
		ids:       ids,
		state:     state,
		auth:      NewAuthService(manager, profiles, ids, term, state, &telemetry.Sink{}, log),
		validator: sessionservice.NewValidator(manager, profiles, ids, state, term, nil, log),
		id:        id,
	}
}

func TestSignIn_BindsUnboundAccount(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	d := newDevice(t, &memProvider{}, profiles)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.auth.nowF = func() time.Time { return at }

	res, err := d.auth.SignIn(ctx, "  Reader@Example.com ", testPassword)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Conflict)
	require.NotNil(t, res.Session)
	assert.Equal(t, testUserID, res.Session.UserID)
	assert.Equal(t, d.id, res.Profile.BoundDevice())
	require.NotNil(t, res.Profile.LastLoginAt)
	assert.True(t, at.Equal(*res.Profile.LastLoginAt))

	assert.Equal(t, d.id, profiles.bound())
	st := d.state.State()
	assert.Equal(t, appstate.PhaseIdle, st.Phase)
	assert.False(t, st.SigningIn)
	assert.False(t, st.SessionInvalidated)
}

func TestSignIn_SameDeviceRebinds(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	d := newDevice(t, &memProvider{}, profiles)

	_, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	res, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	assert.Equal(t, 2, profiles.binds)
}

func TestSignIn_EmptyCredentialsSkipNetwork(t *testing.T) {
	provider := &memProvider{}
	d := newDevice(t, provider, newMemProfiles())

	for _, tc := range []struct{ email, password string }{
		{"", testPassword},
		{"   ", testPassword},
		{testEmail, ""},
	} {
		res, err := d.auth.SignIn(context.Background(), tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Nil(t, res)
	}
	assert.Equal(t, 0, provider.grantCount())
}

func TestSignIn_WrongPassword(t *testing.T) {
	profiles := newMemProfiles()
	d := newDevice(t, &memProvider{}, profiles)

	res, err := d.auth.SignIn(context.Background(), testEmail, "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, res)
	assert.Equal(t, "", profiles.bound())

	st := d.state.State()
	assert.False(t, st.SigningIn)
	assert.NotEmpty(t, st.LastError)
}

func TestSignIn_ProfileErrorsDropSession(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(r *memProfiles)
		wantErr error
	}{
		{"fetch fails", func(r *memProfiles) { r.getErr = errors.New("connection reset") }, nil},
		{"profile missing", func(r *memProfiles) { delete(r.byID, testUserID) }, ErrProfileNotFound},
		{"bind fails", func(r *memProfiles) { r.bindErr = errors.New("permission denied") }, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			profiles := newMemProfiles()
			tc.setup(profiles)
			d := newDevice(t, &memProvider{}, profiles)

			res, err := d.auth.SignIn(ctx, testEmail, testPassword)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Nil(t, res)

			s, err := d.manager.GetSession(ctx)
			require.NoError(t, err)
			assert.Nil(t, s, "fresh session must not survive a failed sign-in")
		})
	}
}

func TestSignIn_ConflictHoldsCredentials(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	other := "device-elsewhere"
	profiles.byID[testUserID].ActiveDeviceID = &other
	d := newDevice(t, &memProvider{}, profiles)

	res, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Conflict)
	assert.Nil(t, res.Session)

	s, err := d.manager.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "no session may exist while the conflict is pending")
	assert.Equal(t, other, profiles.bound(), "binding untouched until confirmed")

	st := d.state.State()
	assert.Equal(t, appstate.PhaseConflictPending, st.Phase)
	pending, ok := d.state.Pending()
	require.True(t, ok)
	assert.Equal(t, testEmail, pending.Email)
	assert.Equal(t, testPassword, pending.Password)
	assert.Equal(t, testUserID, pending.UserID)
}

func TestCancelDeviceConflict(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	other := "device-elsewhere"
	profiles.byID[testUserID].ActiveDeviceID = &other
	d := newDevice(t, &memProvider{}, profiles)

	_, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	d.auth.CancelDeviceConflict()

	st := d.state.State()
	assert.Equal(t, appstate.PhaseIdle, st.Phase)
	_, ok := d.state.Pending()
	assert.False(t, ok)
	assert.Equal(t, other, profiles.bound())

	_, err = d.auth.ConfirmLoginOnThisDevice(ctx)
	assert.ErrorIs(t, err, ErrNoPendingLogin)
}

func TestConfirm_WithoutConflict(t *testing.T) {
	d := newDevice(t, &memProvider{}, newMemProfiles())
	res, err := d.auth.ConfirmLoginOnThisDevice(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingLogin)
	assert.Nil(t, res)
}

func TestConfirm_ReauthFailureKeepsConflictPending(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	other := "device-elsewhere"
	profiles.byID[testUserID].ActiveDeviceID = &other
	d := newDevice(t, &memProvider{}, profiles)

	_, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)

	profiles.bindErr = errors.New("permission denied")
	_, err = d.auth.ConfirmLoginOnThisDevice(ctx)
	require.Error(t, err)

	st := d.state.State()
	assert.Equal(t, appstate.PhaseConflictPending, st.Phase)
	assert.False(t, st.SigningIn)
	_, ok := d.state.Pending()
	assert.True(t, ok, "user may retry or cancel")
	assert.Equal(t, other, profiles.bound())
}

// Device A signs in, device B signs in and takes over, then A discovers the takeover on its next
// check and signs out exactly once without disturbing B's binding.
func TestTakeover_SecondDeviceInvalidatesFirst(t *testing.T) {
	ctx := context.Background()
	provider := &memProvider{}
	profiles := newMemProfiles()
	a := newDevice(t, provider, profiles)
	b := newDevice(t, provider, profiles)
	require.NotEqual(t, a.id, b.id)

	var invalidations int
	a.validator.OnInvalidated = func() { invalidations++ }

	res, err := a.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.Equal(t, a.id, profiles.bound())

	ok, err := a.validator.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	res, err = b.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, res.Conflict)
	assert.Equal(t, a.id, profiles.bound())

	res, err = b.auth.ConfirmLoginOnThisDevice(ctx)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	require.NotNil(t, res.Session)
	assert.Equal(t, b.id, profiles.bound())
	assert.Equal(t, appstate.PhaseResolved, b.state.State().Phase)

	ok, err = a.validator.Revalidate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, a.state.State().SessionInvalidated)
	assert.Equal(t, 1, invalidations)

	s, err := a.manager.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "device A is signed out")
	assert.Equal(t, b.id, profiles.bound(), "A's sign-out must not release B's binding")

	newID, err := a.ids.GetDeviceID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.id, newID, "A's device id is regenerated after sign-out")

	// A second check on A finds no session and does nothing further.
	ok, err = a.validator.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, invalidations)

	ok, err = b.validator.Revalidate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, b.state.State().SessionInvalidated)
}

func TestSignOut_ReleasesBinding(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfiles()
	d := newDevice(t, &memProvider{}, profiles)

	_, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, d.auth.SignOut(ctx))

	assert.Equal(t, "", profiles.bound())
	s, err := d.manager.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, appstate.PhaseIdle, d.state.State().Phase)
}

func TestConfirm_SecondConfirmWhileInFlightIsRejected(t *testing.T) {
	ctx := context.Background()
	provider := &memProvider{}
	profiles := newMemProfiles()
	other := "device-elsewhere"
	profiles.byID[testUserID].ActiveDeviceID = &other
	d := newDevice(t, provider, profiles)

	res, err := d.auth.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, res.Conflict)

	provider.mu.Lock()
	provider.gate = make(chan struct{})
	provider.entered = make(chan struct{}, 1)
	provider.mu.Unlock()

	type result struct {
		res *SignInResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := d.auth.ConfirmLoginOnThisDevice(ctx)
		done <- result{r, err}
	}()
	select {
	case <-provider.entered:
	case <-time.After(time.Second):
		t.Fatal("first confirm did not reach the credential service")
	}

	_, err = d.auth.ConfirmLoginOnThisDevice(ctx)
	assert.ErrorIs(t, err, ErrConfirmInFlight)

	close(provider.gate)
	first := <-done
	require.NoError(t, first.err)
	assert.False(t, first.res.Conflict)
	assert.Equal(t, d.id, profiles.bound())
	assert.Equal(t, 2, provider.grantCount(), "one sign-in and one takeover")
	assert.Equal(t, appstate.PhaseResolved, d.state.State().Phase)
}
