package service

import (
	"context"
	"errors"
	"sync"
	"time"

	identitydomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
	profiledomain "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

type fakeCreds struct {
	mu           sync.Mutex
	session      *identitydomain.Session
	getErr       error
	refreshErrs  []error // consumed per call; last one repeats
	refreshCalls int
	signOuts     int
	refreshGate  chan struct{}
	refreshed    chan struct{}
	events       chan identitydomain.AuthEvent
}

func newFakeCreds(s *identitydomain.Session) *fakeCreds {
	return &fakeCreds{session: s, events: make(chan identitydomain.AuthEvent, 8), refreshed: make(chan struct{}, 16)}
}

func (f *fakeCreds) GetSession(ctx context.Context) (*identitydomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.session == nil {
		return nil, nil
	}
	c := *f.session
	return &c, nil
}

func (f *fakeCreds) RefreshSession(ctx context.Context) (*identitydomain.Session, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	var err error
	if len(f.refreshErrs) > 0 {
		err = f.refreshErrs[0]
		if len(f.refreshErrs) > 1 {
			f.refreshErrs = f.refreshErrs[1:]
		}
	}
	f.mu.Unlock()

	select {
	case f.refreshed <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, identitydomain.ErrNoSession
	}
	f.session.ExpiresAt = time.Now().Add(time.Hour)
	c := *f.session
	return &c, nil
}

func (f *fakeCreds) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	f.session = nil
	return nil
}

func (f *fakeCreds) Subscribe() (<-chan identitydomain.AuthEvent, func()) {
	return f.events, func() {}
}

func (f *fakeCreds) counts() (refreshes, signOuts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.signOuts
}

type memProfileRepo struct {
	mu     sync.Mutex
	byID   map[string]*profiledomain.Profile
	getErr error
	clears int
}

func newMemProfileRepo(profiles ...*profiledomain.Profile) *memProfileRepo {
	r := &memProfileRepo{byID: make(map[string]*profiledomain.Profile)}
	for _, p := range profiles {
		r.byID[p.ID] = p
	}
	return r
}

func (r *memProfileRepo) GetByID(ctx context.Context, id string) (*profiledomain.Profile, error) {
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
	return &c, nil
}

func (r *memProfileRepo) ClearDevice(ctx context.Context, userID, expected string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	if p, ok := r.byID[userID]; ok && p.BoundDevice() == expected {
		p.ActiveDeviceID = nil
	}
	return nil
}

func (r *memProfileRepo) bound(userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[userID].BoundDevice()
}

type fakeDevices struct {
	mu     sync.Mutex
	id     string
	err    error
	clears int
}

func (d *fakeDevices) GetDeviceID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	return d.id, nil
}

func (d *fakeDevices) ClearDeviceID(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	d.id = "regenerated"
	return nil
}

func strPtr(s string) *string { return &s }

var errNetwork = errors.New("network unreachable")
