package application

import "github.com/ericfisherdev/scipguard/internal/domain/model"

// Decision is the outcome of Guard.
type Decision int

const (
	// GuardPending means the session is not restored yet. Callers must wait,
	// not redirect to login.
	GuardPending Decision = iota
	GuardAllow
	GuardDeny
)

// String returns a human-readable name for the decision.
func (d Decision) String() string {
	switch d {
	case GuardPending:
		return "pending"
	case GuardAllow:
		return "allow"
	case GuardDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Guard decides whether a session may reach protected views.
func Guard(s model.Session) Decision {
	switch {
	case !s.Initialized():
		return GuardPending
	case s.Authenticated():
		return GuardAllow
	default:
		return GuardDeny
	}
}
