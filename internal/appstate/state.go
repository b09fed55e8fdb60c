// Package appstate holds the process-wide session state shared by the session components and the
// view layer. Transitions are a pure function of (state, event); side effects are returned to the
// caller as values and never executed here.
package appstate

import "github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/identity/domain"

// Phase is the device conflict resolution phase.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseConflictPending Phase = "conflict_pending"
	PhaseResolved        Phase = "resolved"
)

// State is the application session state.
type State struct {
	Phase Phase
	// SessionInvalidated is set when this device lost the session binding. Cleared by a new sign-in
	// or when the user acknowledges it.
	SessionInvalidated bool
	// SessionStale is set when session recovery gave up; cleared by the next successful refresh or sign-in.
	SessionStale bool
	// Pending holds credentials while a conflict awaits the user's decision.
	Pending   *domain.PendingLogin
	LastError string
	// SigningIn is true between SignInStarted and the sign-in outcome. Binding checks are suppressed meanwhile.
	SigningIn bool
	// Generation increments on every sign-in attempt. Binding checks carry the generation they
	// observed and are ignored when it has moved on.
	Generation uint64
}

// Effect is a side effect requested by a transition.
type Effect string

const (
	// EffectSignOut asks the caller to run a full local sign-out.
	EffectSignOut Effect = "sign_out"
	// EffectNotifyInvalidated asks the caller to tell the user the session moved to another device.
	EffectNotifyInvalidated Effect = "notify_invalidated"
	// EffectNotifyError asks the caller to surface LastError.
	EffectNotifyError Effect = "notify_error"
)

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

type (
	// SignInStarted begins a sign-in. Takeover is true for the confirm-on-this-device path.
	SignInStarted struct{ Takeover bool }
	// SignInFailed ends a sign-in attempt with an error.
	SignInFailed struct{ Err error }
	// ConflictDetected parks credentials because the account is bound to another device.
	ConflictDetected struct{ Pending domain.PendingLogin }
	// ConflictConfirmed completes a takeover.
	ConflictConfirmed struct{}
	// ConflictCancelled discards a pending conflict.
	ConflictCancelled struct{}
	// SignedIn completes a normal sign-in.
	SignedIn struct{}
	// DeviceMismatch reports that the server binding names another device, observed at Generation.
	DeviceMismatch struct{ Generation uint64 }
	// SessionRefreshed reports a successful session refresh.
	SessionRefreshed struct{}
	// RefreshExhausted reports that session recovery gave up.
	RefreshExhausted struct{ Err error }
	// SignedOut reports that local sign-out completed.
	SignedOut struct{}
	// InvalidationAcknowledged clears the invalidated notice.
	InvalidationAcknowledged struct{}
	// ErrorDismissed clears LastError.
	ErrorDismissed struct{}
)

func (SignInStarted) isEvent()            {}
func (SignInFailed) isEvent()             {}
func (ConflictDetected) isEvent()         {}
func (ConflictConfirmed) isEvent()        {}
func (ConflictCancelled) isEvent()        {}
func (SignedIn) isEvent()                 {}
func (DeviceMismatch) isEvent()           {}
func (SessionRefreshed) isEvent()         {}
func (RefreshExhausted) isEvent()         {}
func (SignedOut) isEvent()                {}
func (InvalidationAcknowledged) isEvent() {}
func (ErrorDismissed) isEvent()           {}

// Initial returns the state at process start.
func Initial() State {
	return State{Phase: PhaseIdle}
}

// Reduce returns the next state and the effects the caller must run. It does not mutate s.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case SignInStarted:
		s.Generation++
		s.SigningIn = true
		s.LastError = ""
		if !e.Takeover {
			s.Phase = PhaseIdle
			s.Pending = nil
		}
		return s, nil

	case SignInFailed:
		s.SigningIn = false
		if e.Err != nil {
			s.LastError = e.Err.Error()
		}
		return s, []Effect{EffectNotifyError}

	case ConflictDetected:
		p := e.Pending
		s.Phase = PhaseConflictPending
		s.Pending = &p
		s.SigningIn = false
		return s, nil

	case ConflictConfirmed:
		if s.Phase != PhaseConflictPending {
			return s, nil
		}
		s.Phase = PhaseResolved
		s.Pending = nil
		s.SigningIn = false
		s.SessionInvalidated = false
		s.SessionStale = false
		return s, nil

	case ConflictCancelled:
		s.Phase = PhaseIdle
		s.Pending = nil
		s.SigningIn = false
		return s, nil

	case SignedIn:
		s.Phase = PhaseIdle
		s.Pending = nil
		s.SigningIn = false
		s.SessionInvalidated = false
		s.SessionStale = false
		return s, nil

	case DeviceMismatch:
		if s.SigningIn || e.Generation != s.Generation || s.SessionInvalidated {
			return s, nil
		}
		s.SessionInvalidated = true
		return s, []Effect{EffectSignOut, EffectNotifyInvalidated}

	case SessionRefreshed:
		s.SessionStale = false
		return s, nil

	case RefreshExhausted:
		s.SessionStale = true
		if e.Err != nil {
			s.LastError = e.Err.Error()
		}
		return s, []Effect{EffectNotifyError}

	case SignedOut:
		s.Phase = PhaseIdle
		s.Pending = nil
		s.SigningIn = false
		s.SessionStale = false
		return s, nil

	case InvalidationAcknowledged:
		s.SessionInvalidated = false
		return s, nil

	case ErrorDismissed:
		s.LastError = ""
		return s, nil
	}
	return s, nil
}
