package web_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/scipguard/internal/adapter/driving/web"
	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

type mockAPI struct {
	mu            sync.Mutex
	loginReply    driven.LoginReply
	loginErr      error
	registerReply driven.RegisterReply
	registerErr   error
	records       []model.LogRecord
	analyzeResult model.AnalysisResult
	analyzeErr    error
	analyzed      []string
}

func (m *mockAPI) Login(_ context.Context, _, _ string) (driven.LoginReply, error) {
	return m.loginReply, m.loginErr
}

func (m *mockAPI) Register(_ context.Context, _, _, _ string) (driven.RegisterReply, error) {
	return m.registerReply, m.registerErr
}

func (m *mockAPI) FetchLogs(_ context.Context, _ model.Credential) ([]model.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *mockAPI) AnalyzeCommit(_ context.Context, _ model.Credential, code string) (model.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzed = append(m.analyzed, code)
	return m.analyzeResult, m.analyzeErr
}

type memoryKV struct {
	mu        sync.Mutex
	data      map[string]string
	deleteErr error
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) SetAll(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
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
	return nil
}

var aliceReply = driven.LoginReply{AccessToken: "t1", UserID: "u1", Email: "a@b.com", Username: "alice"}

type testEnv struct {
	api    *mockAPI
	kv     *memoryKV
	store  *application.SessionStore
	loop   *application.LogSyncLoop
	router http.Handler
	csrf   string
}

func newTestEnv(t *testing.T, api *mockAPI) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	kv := &memoryKV{data: map[string]string{}}
	store := application.NewSessionStore(api, kv, logger)
	loop := application.NewLogSyncLoop(api, time.Hour, logger)
	t.Cleanup(loop.Close)

	analysis := application.NewAnalysisService(api, store, loop, logger)
	h := web.NewHandler(store, loop, analysis, 3*time.Second, logger)

	r := mux.NewRouter()
	web.RegisterRoutes(r, h)

	return &testEnv{api: api, kv: kv, store: store, loop: loop, router: r}
}

// loggedIn restores, logs in and arms the loop, waiting for the first fetch.
func (e *testEnv) loggedIn(t *testing.T) {
	t.Helper()
	e.api.loginReply = aliceReply
	e.store.Restore(context.Background())
	require.True(t, e.store.Login(context.Background(), "a@b.com", "x").OK())

	done := make(chan struct{}, 1)
	unsubscribe := e.loop.Subscribe(func(application.SyncEvent) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	e.loop.Arm(e.store.Token())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for first fetch")
	}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if e.csrf != "" {
		req.AddCookie(&http.Cookie{Name: "scipguard_csrf", Value: e.csrf})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// post submits a form. The CSRF cookie and field are added unless the
// caller overrides csrf_token in form.
func (e *testEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if _, ok := form["csrf_token"]; !ok {
		form.Set("csrf_token", e.csrf)
	}

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "scipguard_csrf", Value: e.csrf})
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// fetchCSRF loads the login page and keeps the issued CSRF token.
func (e *testEnv) fetchCSRF(t *testing.T) {
	t.Helper()
	rec := e.get(t, "/login")
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "scipguard_csrf" {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	doc := parse(t, rec)
	field, ok := doc.Find(`form#login input[name="csrf_token"]`).Attr("value")
	require.True(t, ok)
	assert.Equal(t, cookie, field)
	e.csrf = cookie
}

func parse(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	return doc
}

func TestDashboard_PendingBeforeRestore(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})

	rec := env.get(t, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Equal(t, 1, parse(t, rec).Find("main.pending").Length())
}

func TestDashboard_AnonymousRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})
	env.store.Restore(context.Background())

	rec := env.get(t, "/")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestDashboard_RendersLogs(t *testing.T) {
	ts := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	env := newTestEnv(t, &mockAPI{records: []model.LogRecord{
		{CommitID: "c1", CommitHash: "0123456789abcdef", Timestamp: ts, Status: model.CommitStatusRejected, RiskScore: 88, DLTTxHash: "0xdead"},
		{CommitID: "c2", CommitHash: "fedcba9876543210", Timestamp: ts, Status: model.CommitStatusAccepted, RiskScore: 12},
	}})
	env.loggedIn(t)

	rec := env.get(t, "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Refresh"))

	doc := parse(t, rec)
	assert.Equal(t, "alice <a@b.com>", doc.Find("header .user").Text())

	rows := doc.Find("table.logs tbody tr")
	require.Equal(t, 2, rows.Length())

	first := rows.First()
	assert.True(t, first.HasClass("status-rejected"))
	assert.Equal(t, "c1", first.AttrOr("data-commit-id", ""))
	assert.Equal(t, "0123456", first.Find("td").Eq(0).Text())
	assert.Equal(t, "2026-10-16 09:30:00 UTC", first.Find("td").Eq(1).Text())
	assert.Equal(t, "88", first.Find("td").Eq(3).Text())
	assert.True(t, first.Find("td").Eq(3).HasClass("risk-high"))
	assert.Equal(t, "0xdead", first.Find("td").Eq(4).Text())

	assert.Equal(t, "c2", rows.Eq(1).AttrOr("data-commit-id", ""), "server order is kept")
	assert.Contains(t, doc.Find("section.report").Text(), "2 commits analyzed")
}

func TestDashboard_EmptyLog(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})
	env.loggedIn(t)

	doc := parse(t, env.get(t, "/"))

	assert.Equal(t, 1, doc.Find("table.logs tr.empty").Length())
}

func TestDashboard_EscapesServerText(t *testing.T) {
	env := newTestEnv(t, &mockAPI{records: []model.LogRecord{
		{CommitID: `"><script>x</script>`, CommitHash: "<b>hash</b>", DLTTxHash: "<i>tx</i>"},
	}})
	env.loggedIn(t)

	rec := env.get(t, "/")
	body := rec.Body.String()

	assert.NotContains(t, body, "<script>x</script>")
	assert.NotContains(t, body, "<i>tx</i>")
}

func TestLoginForm(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{})
		env.store.Restore(context.Background())

		env.fetchCSRF(t)
	})

	t.Run("authenticated redirects home", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{})
		env.loggedIn(t)

		rec := env.get(t, "/login")

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		api        *mockAPI
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			api:        &mockAPI{loginReply: aliceReply},
			wantStatus: http.StatusSeeOther,
		},
		{
			name:       "rejected",
			api:        &mockAPI{loginReply: driven.LoginReply{Error: "Invalid credentials"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid credentials",
		},
		{
			name:       "unavailable",
			api:        &mockAPI{loginErr: driven.ErrUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "server unavailable, try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.api)
			env.store.Restore(context.Background())
			env.fetchCSRF(t)

			rec := env.post(t, "/login", url.Values{"email": {" a@b.com "}, "password": {"x"}})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError == "" {
				assert.Equal(t, "/", rec.Header().Get("Location"))
				assert.True(t, env.store.Current().Authenticated())
				return
			}

			doc := parse(t, rec)
			assert.Equal(t, tt.wantError, doc.Find(".banner.error").Text())
			assert.Equal(t, "a@b.com", doc.Find(`form#login input[name="email"]`).AttrOr("value", ""))
			assert.False(t, env.store.Current().Authenticated())
		})
	}
}

func TestLogin_RejectsMissingCSRF(t *testing.T) {
	env := newTestEnv(t, &mockAPI{loginReply: aliceReply})
	env.store.Restore(context.Background())
	env.fetchCSRF(t)

	rec := env.post(t, "/login", url.Values{"email": {"a@b.com"}, "password": {"x"}, "csrf_token": {"forged"}})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, env.store.Current().Authenticated())
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		api        *mockAPI
		wantStatus int
		selector   string
		wantText   string
	}{
		{
			name:       "created",
			api:        &mockAPI{registerReply: driven.RegisterReply{Created: true}},
			wantStatus: http.StatusOK,
			selector:   ".banner.notice",
			wantText:   "account created, please log in",
		},
		{
			name:       "duplicate",
			api:        &mockAPI{registerReply: driven.RegisterReply{Error: "User already exists"}},
			wantStatus: http.StatusBadRequest,
			selector:   ".banner.error",
			wantText:   "User already exists",
		},
		{
			name:       "unavailable",
			api:        &mockAPI{registerErr: driven.ErrUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			selector:   ".banner.error",
			wantText:   "server unavailable, try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.api)
			env.store.Restore(context.Background())
			env.fetchCSRF(t)

			rec := env.post(t, "/register", url.Values{
				"email": {"a@b.com"}, "password": {"x"}, "username": {"alice"},
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantText, parse(t, rec).Find(tt.selector).Text())
			assert.False(t, env.store.Current().Authenticated(), "register never logs in")
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})
	env.loggedIn(t)
	env.csrf = "token"

	rec := env.post(t, "/logout", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, model.StateAnonymous, env.store.Current().State)
}

func TestLogout_PersistedSessionNotCleared(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})
	env.loggedIn(t)
	env.csrf = "token"
	env.kv.mu.Lock()
	env.kv.deleteErr = errors.New("disk full")
	env.kv.mu.Unlock()

	rec := env.post(t, "/logout", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	doc := parse(t, rec)
	assert.Contains(t, doc.Find(".banner.error").Text(), "saved session could not be removed")
	assert.Equal(t, 1, doc.Find("form#login").Length())
	assert.Equal(t, model.StateAnonymous, env.store.Current().State)

	// The keys are still there, so a fresh process signs back in.
	restarted := application.NewSessionStore(env.api, env.kv, nil)
	assert.Equal(t, model.StateAuthenticated, restarted.Restore(context.Background()))
}

func TestAnalyze(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{analyzeResult: model.AnalysisResult{
			Message: "Commit analyzed",
			Commit:  model.LogRecord{CommitID: "c9", Status: model.CommitStatusAccepted, RiskScore: 12.5},
		}})
		env.loggedIn(t)
		env.csrf = "token"

		rec := env.post(t, "/analyze", url.Values{"code_content": {"print(1)"}})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Commit analyzed: Accepted, risk 12.5", parse(t, rec).Find(".banner.notice").Text())
		assert.Equal(t, []string{"print(1)"}, env.api.analyzed)
	})

	t.Run("empty code", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{})
		env.loggedIn(t)
		env.csrf = "token"

		rec := env.post(t, "/analyze", url.Values{"code_content": {"   "}})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Paste some code to analyze.", parse(t, rec).Find(".banner.error").Text())
		assert.Empty(t, env.api.analyzed)
	})

	t.Run("server error keeps code", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{analyzeErr: &driven.StatusError{StatusCode: http.StatusBadRequest, Message: "Empty code"}})
		env.loggedIn(t)
		env.csrf = "token"

		rec := env.post(t, "/analyze", url.Values{"code_content": {"x = 1"}})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		doc := parse(t, rec)
		assert.Equal(t, "Empty code", doc.Find(".banner.error").Text())
		assert.Equal(t, "x = 1", doc.Find(`textarea[name="code_content"]`).Text())
		assert.True(t, env.store.Current().Authenticated())
	})

	t.Run("anonymous", func(t *testing.T) {
		env := newTestEnv(t, &mockAPI{})
		env.store.Restore(context.Background())
		env.csrf = "token"

		rec := env.post(t, "/analyze", url.Values{"code_content": {"x"}})

		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, &mockAPI{})

	rec := env.get(t, "/static/app.css")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "table.logs")
}
