package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identityservice "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/service"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

type fakeSignIn struct {
	conflict   bool
	signInErr  error
	confirmErr error
	hasAccess  bool

	confirms int
	cancels  int
}

func (f *fakeSignIn) result() *identityservice.SignInResult {
	return &identityservice.SignInResult{Profile: &profiledomain.Profile{ID: "u1", Email: "reader@example.com", HasAccess: f.hasAccess}}
}

func (f *fakeSignIn) SignIn(ctx context.Context, email, password string) (*identityservice.SignInResult, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	res := f.result()
	res.Conflict = f.conflict
	return res, nil
}

func (f *fakeSignIn) ConfirmLoginOnThisDevice(ctx context.Context) (*identityservice.SignInResult, error) {
	f.confirms++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.result(), nil
}

func (f *fakeSignIn) CancelDeviceConflict() { f.cancels++ }

func runLogin(t *testing.T, svc *fakeSignIn, answer string, takeover bool) (string, error) {
	t.Helper()
	var out bytes.Buffer
	p := newPrompter(strings.NewReader(answer), &bytes.Buffer{})
	err := login(context.Background(), svc, p, &out, "reader@example.com", "secret", takeover)
	return out.String(), err
}

func TestLogin_NoConflict(t *testing.T) {
	svc := &fakeSignIn{hasAccess: true}
	out, err := runLogin(t, svc, "", false)
	require.NoError(t, err)
	assert.Equal(t, "Signed in as reader@example.com.\n", out)
	assert.Equal(t, 0, svc.confirms)
}

func TestLogin_NoAccessNotice(t *testing.T) {
	out, err := runLogin(t, &fakeSignIn{}, "", false)
	require.NoError(t, err)
	assert.Contains(t, out, "does not have reading access")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &fakeSignIn{signInErr: identityservice.ErrInvalidCredentials}
	_, err := runLogin(t, svc, "", false)
	require.Error(t, err)
	assert.Equal(t, "invalid email or password", err.Error())
}

func TestLogin_ConflictConfirmed(t *testing.T) {
	svc := &fakeSignIn{conflict: true, hasAccess: true}
	out, err := runLogin(t, svc, "y\n", false)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.confirms)
	assert.Equal(t, 0, svc.cancels)
	assert.Contains(t, out, "Signed in as")
}

func TestLogin_ConflictDeclined(t *testing.T) {
	svc := &fakeSignIn{conflict: true}
	out, err := runLogin(t, svc, "n\n", false)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.confirms)
	assert.Equal(t, 1, svc.cancels)
	assert.Contains(t, out, "cancelled")
}

func TestLogin_ConflictTakeoverFlag(t *testing.T) {
	svc := &fakeSignIn{conflict: true, hasAccess: true}
	_, err := runLogin(t, svc, "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.confirms)
}

func TestLogin_ConfirmFailureCancels(t *testing.T) {
	svc := &fakeSignIn{conflict: true, confirmErr: errors.New("network unreachable")}
	_, err := runLogin(t, svc, "yes\n", false)
	require.Error(t, err)
	assert.Equal(t, 1, svc.cancels)
}
