package application

import "context"

type sessionStoreKey struct{}

// WithSessionStore returns a child context carrying s.
func WithSessionStore(ctx context.Context, s *SessionStore) context.Context {
	return context.WithValue(ctx, sessionStoreKey{}, s)
}

// SessionStoreFrom returns the SessionStore carried by ctx. It panics when
// none is in scope: that is a wiring bug, not a runtime condition.
func SessionStoreFrom(ctx context.Context) *SessionStore {
	s, ok := ctx.Value(sessionStoreKey{}).(*SessionStore)
	if !ok || s == nil {
		panic("application: SessionStoreFrom called without a SessionStore in scope")
	}
	return s
}
