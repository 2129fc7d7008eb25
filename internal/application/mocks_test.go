package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockAuthAPI struct {
	mu        sync.Mutex
	login     func(ctx context.Context, email, password string) (driven.LoginReply, error)
	register  func(ctx context.Context, email, password, username string) (driven.RegisterReply, error)
	loginHits int
}

func (m *mockAuthAPI) Login(ctx context.Context, email, password string) (driven.LoginReply, error) {
	m.mu.Lock()
	m.loginHits++
	m.mu.Unlock()
	if m.login == nil {
		return driven.LoginReply{}, errors.New("login not stubbed")
	}
	return m.login(ctx, email, password)
}

func (m *mockAuthAPI) Register(ctx context.Context, email, password, username string) (driven.RegisterReply, error) {
	if m.register == nil {
		return driven.RegisterReply{}, errors.New("register not stubbed")
	}
	return m.register(ctx, email, password, username)
}

// loginReplying returns a mockAuthAPI whose Login always answers reply.
func loginReplying(reply driven.LoginReply) *mockAuthAPI {
	return &mockAuthAPI{
		login: func(_ context.Context, _, _ string) (driven.LoginReply, error) {
			return reply, nil
		},
	}
}

// memoryKV is an in-memory SessionKV. After every mutation it records a copy
// of the whole store so tests can inspect each observable state.
type memoryKV struct {
	mu      sync.Mutex
	data    map[string]string
	history []map[string]string
	gets    int

	getErr    error
	setErr    error
	deleteErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) SetAll(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	for k, v := range values {
		m.data[k] = v
	}
	m.record()
	return nil
}

func (m *memoryKV) DeleteAll(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	m.record()
	return nil
}

func (m *memoryKV) record() {
	snap := make(map[string]string, len(m.data))
	for k, v := range m.data {
		snap[k] = v
	}
	m.history = append(m.history, snap)
}

func (m *memoryKV) snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]string, len(m.data))
	for k, v := range m.data {
		snap[k] = v
	}
	return snap
}

func (m *memoryKV) put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

type fetchResult struct {
	records []model.LogRecord
	err     error
}

type fetchCall struct {
	Token model.Credential
	Start time.Time
	End   time.Time
}

// scriptedFetcher answers FetchLogs from script in call order, then from
// fallback. handler, when set, takes precedence.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []fetchResult
	fallback fetchResult
	handler  func(ctx context.Context, call int, token model.Credential) fetchResult
	calls    []fetchCall
}

func (f *scriptedFetcher) FetchLogs(ctx context.Context, token model.Credential) ([]model.LogRecord, error) {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, fetchCall{Token: token, Start: time.Now()})
	handler := f.handler
	res := f.fallback
	if i < len(f.script) {
		res = f.script[i]
	}
	f.mu.Unlock()

	if handler != nil {
		res = handler(ctx, i, token)
	}

	f.mu.Lock()
	f.calls[i].End = time.Now()
	f.mu.Unlock()

	return res.records, res.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *scriptedFetcher) callsCopy() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fetchCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type mockAnalyzer struct {
	analyze func(ctx context.Context, token model.Credential, code string) (model.AnalysisResult, error)
	calls   int
}

func (m *mockAnalyzer) AnalyzeCommit(ctx context.Context, token model.Credential, code string) (model.AnalysisResult, error) {
	m.calls++
	return m.analyze(ctx, token, code)
}

type staticTokens model.Credential

func (s staticTokens) Token() model.Credential { return model.Credential(s) }

type mockRefresher struct {
	err   error
	calls int
}

func (m *mockRefresher) RefreshNow(_ context.Context) error {
	m.calls++
	return m.err
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Health(_ context.Context) error { return m.err }

// --- Helpers ---

// observedEvent pairs a sync event with the snapshot taken when it fired.
type observedEvent struct {
	Event    application.SyncEvent
	Snapshot model.LogSnapshot
}

// observe subscribes to loop and forwards each event with the snapshot at
// that moment.
func observe(t *testing.T, loop *application.LogSyncLoop) <-chan observedEvent {
	t.Helper()
	ch := make(chan observedEvent, 256)
	unsubscribe := loop.Subscribe(func(ev application.SyncEvent) {
		select {
		case ch <- observedEvent{Event: ev, Snapshot: loop.Snapshot()}:
		default:
		}
	})
	t.Cleanup(unsubscribe)
	return ch
}

// nextEvent waits for the next event on ch.
func nextEvent(t *testing.T, ch <-chan observedEvent) observedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for sync event")
		return observedEvent{}
	}
}

// waitForKind skips events until one of kind arrives.
func waitForKind(t *testing.T, ch <-chan observedEvent, kind application.SyncEventKind) observedEvent {
	t.Helper()
	for {
		ev := nextEvent(t, ch)
		if ev.Event.Kind == kind {
			return ev
		}
	}
}
