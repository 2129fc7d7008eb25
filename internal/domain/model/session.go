package model

// SessionState is the lifecycle state of the client session.
type SessionState int

const (
	// StateUninitialized means Restore has not run yet. Consumers must treat it
	// as "unknown", never as "logged out".
	StateUninitialized SessionState = iota
	// StateRestoring is entered once while persisted state is read.
	StateRestoring
	// StateAuthenticated means both an Identity and a Credential are held.
	StateAuthenticated
	// StateAnonymous means neither is held.
	StateAnonymous
)

// String returns a human-readable name for the session state.
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is an immutable view of the session at one point in time.
// Identity is nil and Credential is empty unless State is StateAuthenticated.
type Session struct {
	State      SessionState
	Identity   *Identity
	Credential Credential
}

// Authenticated reports whether the session holds an identity and a credential.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil && !s.Credential.IsZero()
}

// Initialized reports whether restoring has completed.
func (s Session) Initialized() bool {
	return s.State == StateAuthenticated || s.State == StateAnonymous
}

// Persisted session keys. Both are written and cleared together.
const (
	SessionKeyToken = "access_token"
	SessionKeyUser  = "user_data"
)
