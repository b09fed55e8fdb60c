package appstate

import (
	"errors"
	"sync"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"
)

// Errors returned by BeginTakeover.
var (
	ErrNoConflict     = errors.New("no device conflict pending")
	ErrSignInInFlight = errors.New("sign-in already in progress")
)

// View is the state as published to subscribers. Pending credentials are not included.
type View struct {
	Phase              Phase
	SessionInvalidated bool
	SessionStale       bool
	PendingEmail       string
	LastError          string
	SigningIn          bool
}

func viewOf(s State) View {
	v := View{
		Phase:              s.Phase,
		SessionInvalidated: s.SessionInvalidated,
		SessionStale:       s.SessionStale,
		LastError:          s.LastError,
		SigningIn:          s.SigningIn,
	}
	if s.Pending != nil {
		v.PendingEmail = s.Pending.Email
	}
	return v
}

// Store serializes transitions and publishes each resulting View.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[int]chan View
	next  int
}

// NewStore returns a Store in the initial state.
func NewStore() *Store {
	return &Store{state: Initial(), subs: make(map[int]chan View)}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// Generation returns the current sign-in generation.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Generation
}

// Pending returns a copy of the pending login, if any.
func (s *Store) Pending() (domain.PendingLogin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Pending == nil {
		return domain.PendingLogin{}, false
	}
	return *s.state.Pending, true
}

// Dispatch applies ev and returns the effects the caller must run.
func (s *Store) Dispatch(ev Event) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ev)
}

// BeginTakeover checks for a pending conflict and starts the takeover sign-in under one lock,
// returning the held credentials. Only one takeover can be in flight.
func (s *Store) BeginTakeover() (domain.PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != PhaseConflictPending || s.state.Pending == nil {
		return domain.PendingLogin{}, ErrNoConflict
	}
	if s.state.SigningIn {
		return domain.PendingLogin{}, ErrSignInInFlight
	}
	pending := *s.state.Pending
	s.applyLocked(SignInStarted{Takeover: true})
	return pending, nil
}

func (s *Store) applyLocked(ev Event) []Effect {
	next, effects := Reduce(s.state, ev)
	s.state = next
	v := viewOf(next)
	for _, ch := range s.subs {
		// Keep only the latest view for slow subscribers.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	return effects
}

// Subscribe returns a channel that receives the current View immediately and after every transition,
// and a func that unsubscribes and closes it.
func (s *Store) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- viewOf(s.state)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func copyState(st State) State {
	if st.Pending != nil {
		p := *st.Pending
		st.Pending = &p
	}
	return st
}
