// Package application contains use-case orchestration services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// LoginOutcome classifies the result of a login attempt.
type LoginOutcome int

const (
	// LoginSucceeded means the session is now authenticated and persisted.
	LoginSucceeded LoginOutcome = iota
	// LoginRejected means the server answered without a token.
	LoginRejected
	// LoginUnavailable means the server could not be reached or its reply
	// could not be decoded.
	LoginUnavailable
	// LoginStorageFailed means the server issued a token but it could not be
	// persisted. The session stays as it was.
	LoginStorageFailed
	// LoginSuperseded means Logout ran while the request was in flight. The
	// reply is dropped and the session stays anonymous.
	LoginSuperseded
)

// String returns a human-readable name for the outcome.
func (o LoginOutcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginRejected:
		return "rejected"
	case LoginUnavailable:
		return "unavailable"
	case LoginStorageFailed:
		return "storage_failed"
	case LoginSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// LoginResult is the typed result of SessionStore.Login. Expected failures
// are reported here, never as errors.
type LoginResult struct {
	Outcome  LoginOutcome
	Message  string
	Identity *model.Identity // set only on LoginSucceeded
}

// OK reports whether the login succeeded.
func (r LoginResult) OK() bool {
	return r.Outcome == LoginSucceeded
}

// RegisterOutcome classifies the result of a registration attempt.
type RegisterOutcome int

const (
	RegisterCreated RegisterOutcome = iota
	RegisterRejected
	RegisterUnavailable
)

// String returns a human-readable name for the outcome.
func (o RegisterOutcome) String() string {
	switch o {
	case RegisterCreated:
		return "created"
	case RegisterRejected:
		return "rejected"
	case RegisterUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// RegisterResult is the typed result of SessionStore.Register. A created
// account is not logged in; the caller must call Login next.
type RegisterResult struct {
	Outcome RegisterOutcome
	Message string
}

// OK reports whether the account was created.
func (r RegisterResult) OK() bool {
	return r.Outcome == RegisterCreated
}

// Fallback messages when the server gives no explanation.
const (
	msgLoginRejected    = "invalid email or password"
	msgUnavailable      = "server unavailable, try again"
	msgStorageFailed    = "signed in, but the session could not be saved"
	msgSuperseded       = "logged out while signing in"
	msgRegisterCreated  = "account created, please log in"
	msgRegisterRejected = "registration failed"
)

// SessionStore is the single owner of the client session. It keeps the
// in-memory identity and credential consistent with the persisted copy in a
// driven.SessionKV.
//
// Transitions persist first and swap memory second, so a reader never sees
// an identity without a credential or the reverse.
type SessionStore struct {
	auth   driven.AuthAPI
	kv     driven.SessionKV
	logger *slog.Logger

	// opMu serializes transitions, including listener notification.
	opMu sync.Mutex
	// logouts counts Logout calls. Guarded by opMu.
	logouts uint64

	mu      sync.RWMutex
	session model.Session

	subsMu    sync.Mutex
	subs      map[uint64]func(model.Session)
	nextSubID uint64
}

// NewSessionStore creates an uninitialized SessionStore. Call Restore before
// relying on Current.
func NewSessionStore(auth driven.AuthAPI, kv driven.SessionKV, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		auth:    auth,
		kv:      kv,
		logger:  logger,
		session: model.Session{State: model.StateUninitialized},
		subs:    make(map[uint64]func(model.Session)),
	}
}

// Restore loads the persisted session. Both keys must be present and decode,
// otherwise both are cleared and the store becomes anonymous. Once the store
// is initialized, Restore returns the current state without touching storage.
func (s *SessionStore) Restore(ctx context.Context) model.SessionState {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.session.Initialized() {
		state := s.session.State
		s.mu.Unlock()
		return state
	}
	s.session = model.Session{State: model.StateRestoring}
	s.mu.Unlock()

	ident, token, err := s.readPersisted(ctx)
	if err != nil {
		s.logger.Warn("discarding persisted session", "error", err)
		if delErr := s.kv.DeleteAll(ctx, model.SessionKeyToken, model.SessionKeyUser); delErr != nil {
			s.logger.Error("failed to clear persisted session", "error", delErr)
		}
		s.commit(model.Session{State: model.StateAnonymous})
		return model.StateAnonymous
	}
	if ident == nil {
		s.commit(model.Session{State: model.StateAnonymous})
		return model.StateAnonymous
	}

	s.logger.Info("session restored", "user_id", ident.UserID)
	s.commit(model.Session{State: model.StateAuthenticated, Identity: ident, Credential: token})
	return model.StateAuthenticated
}

// errPartialSession reports a persisted session with only one of its keys.
var errPartialSession = errors.New("partial persisted session")

// readPersisted returns (nil, "", nil) when nothing is persisted.
func (s *SessionStore) readPersisted(ctx context.Context) (*model.Identity, model.Credential, error) {
	token, hasToken, err := s.kv.Get(ctx, model.SessionKeyToken)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", model.SessionKeyToken, err)
	}
	rawUser, hasUser, err := s.kv.Get(ctx, model.SessionKeyUser)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", model.SessionKeyUser, err)
	}

	if !hasToken && !hasUser {
		return nil, "", nil
	}
	if !hasToken || !hasUser || token == "" {
		return nil, "", errPartialSession
	}

	var ident *model.Identity
	if err := json.Unmarshal([]byte(rawUser), &ident); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", model.SessionKeyUser, err)
	}
	if ident == nil {
		return nil, "", fmt.Errorf("decode %s: %w", model.SessionKeyUser, errPartialSession)
	}

	return ident, model.Credential(token), nil
}

// Login authenticates against the server. On success both session keys are
// written in one atomic SetAll before the store becomes authenticated. Any
// failure leaves the session unchanged.
//
// The server call runs without holding the transition lock. A Logout that
// lands while it is in flight wins: the reply is dropped with
// LoginSuperseded and nothing is persisted.
func (s *SessionStore) Login(ctx context.Context, email, password string) LoginResult {
	s.opMu.Lock()
	startLogouts := s.logouts
	s.opMu.Unlock()

	reply, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("login request failed", "error", err)
		return LoginResult{Outcome: LoginUnavailable, Message: msgUnavailable}
	}

	if reply.AccessToken == "" {
		return LoginResult{Outcome: LoginRejected, Message: firstNonEmpty(reply.Error, reply.Message, msgLoginRejected)}
	}

	ident := model.Identity{
		UserID:   reply.UserID,
		Email:    reply.Email,
		Username: reply.Username,
	}
	encoded, err := json.Marshal(ident)
	if err != nil {
		s.logger.Error("encode identity", "error", err)
		return LoginResult{Outcome: LoginStorageFailed, Message: msgStorageFailed}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.logouts != startLogouts {
		s.logger.Info("dropping login reply after logout", "user_id", ident.UserID)
		return LoginResult{Outcome: LoginSuperseded, Message: msgSuperseded}
	}

	if err := s.kv.SetAll(ctx, map[string]string{
		model.SessionKeyToken: reply.AccessToken,
		model.SessionKeyUser:  string(encoded),
	}); err != nil {
		s.logger.Error("persist session", "error", err)
		return LoginResult{Outcome: LoginStorageFailed, Message: msgStorageFailed}
	}

	s.logger.Info("logged in", "user_id", ident.UserID)
	s.commit(model.Session{
		State:      model.StateAuthenticated,
		Identity:   &ident,
		Credential: model.Credential(reply.AccessToken),
	})

	out := ident
	return LoginResult{Outcome: LoginSucceeded, Identity: &out}
}

// Register creates an account. It never changes the session.
func (s *SessionStore) Register(ctx context.Context, email, password, username string) RegisterResult {
	reply, err := s.auth.Register(ctx, email, password, username)
	if err != nil {
		s.logger.Warn("register request failed", "error", err)
		return RegisterResult{Outcome: RegisterUnavailable, Message: msgUnavailable}
	}

	if !reply.Created {
		return RegisterResult{Outcome: RegisterRejected, Message: firstNonEmpty(reply.Error, reply.Message, msgRegisterRejected)}
	}
	return RegisterResult{Outcome: RegisterCreated, Message: firstNonEmpty(reply.Message, msgRegisterCreated)}
}

// Logout makes the session anonymous and clears both persisted keys. It does
// not contact the server. The in-memory transition happens even when storage
// fails; the storage error is returned and the caller must report it, because
// the next Restore would bring the persisted session back.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.logouts++
	s.commit(model.Session{State: model.StateAnonymous})

	if err := s.kv.DeleteAll(ctx, model.SessionKeyToken, model.SessionKeyUser); err != nil {
		s.logger.Error("clear persisted session", "error", err)
		return fmt.Errorf("clear persisted session: %w", err)
	}

	s.logger.Info("logged out")
	return nil
}

// Current returns a copy of the session.
func (s *SessionStore) Current() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// Token returns the current credential, or "" when not authenticated.
func (s *SessionStore) Token() model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Credential
}

// Initialized reports whether Restore has completed. Until then the session
// is unknown, not anonymous.
func (s *SessionStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Initialized()
}

// Subscribe registers fn to run after every committed transition. Listeners
// run synchronously in transition order and must not call Restore, Login or
// Logout. The returned function removes the listener.
func (s *SessionStore) Subscribe(fn func(model.Session)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// commit swaps the in-memory session and notifies listeners. Callers hold opMu.
func (s *SessionStore) commit(next model.Session) {
	s.mu.Lock()
	s.session = next
	s.mu.Unlock()

	s.subsMu.Lock()
	listeners := make([]func(model.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range listeners {
		fn(copySession(next))
	}
}

func copySession(in model.Session) model.Session {
	out := in
	if in.Identity != nil {
		ident := *in.Identity
		out.Identity = &ident
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
