// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/scipguard/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

const (
	pageTitle         = "SCIP Guard"
	msgLogoutNotSaved = "Logged out, but the saved session could not be removed. It will be restored on the next start."
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	store        *application.SessionStore
	logs         *application.LogSyncLoop
	analysis     *application.AnalysisService
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. pollInterval
// sets how often the dashboard page reloads itself.
func NewHandler(
	store *application.SessionStore,
	logs *application.LogSyncLoop,
	analysis *application.AnalysisService,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:        store,
		logs:         logs,
		analysis:     analysis,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Dashboard renders the audit log for an authenticated session. Anonymous
// sessions are redirected to /login; an unrestored session gets a holding
// page instead of a redirect.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := h.store.Current()

	switch application.Guard(session) {
	case application.GuardPending:
		h.renderPending(w, r)
		return
	case application.GuardDeny:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	token := csrfToken(w, r)
	h.renderDashboard(w, r, http.StatusOK, toDashboardViewModel(session, h.logs.Snapshot(), token))
}

// LoginForm renders the login and registration page.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	switch application.Guard(h.store.Current()) {
	case application.GuardPending:
		h.renderPending(w, r)
		return
	case application.GuardAllow:
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.renderLogin(w, r, http.StatusOK, vm.LoginViewModel{CSRFToken: csrfToken(w, r)})
}

// Login handles the login form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	res := h.store.Login(r.Context(), email, r.PostFormValue("password"))
	if res.OK() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	status := http.StatusUnauthorized
	switch res.Outcome {
	case application.LoginUnavailable:
		status = http.StatusServiceUnavailable
	case application.LoginStorageFailed:
		status = http.StatusInternalServerError
	case application.LoginSuperseded:
		status = http.StatusConflict
	}

	h.renderLogin(w, r, status, vm.LoginViewModel{
		Email:     email,
		Error:     res.Message,
		CSRFToken: csrfToken(w, r),
	})
}

// Register handles the registration form. It never logs the user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	res := h.store.Register(r.Context(), email, r.PostFormValue("password"), strings.TrimSpace(r.PostFormValue("username")))

	m := vm.LoginViewModel{Email: email, CSRFToken: csrfToken(w, r)}
	status := http.StatusOK
	switch res.Outcome {
	case application.RegisterCreated:
		m.Notice = res.Message
	case application.RegisterRejected:
		m.Error = res.Message
		status = http.StatusBadRequest
	default:
		m.Error = res.Message
		status = http.StatusServiceUnavailable
	}

	h.renderLogin(w, r, status, m)
}

// Logout clears the session and returns to the login page. If the saved
// session could not be removed the login page is shown with an error, since
// the next start would sign the user back in.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	if err := h.store.Logout(r.Context()); err != nil {
		h.logger.Error("failed to clear persisted session", "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, vm.LoginViewModel{
			Error:     msgLogoutNotSaved,
			CSRFToken: csrfToken(w, r),
		})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Analyze handles the code submission form and re-renders the dashboard.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	session := h.store.Current()
	if application.Guard(session) != application.GuardAllow {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	code := r.PostFormValue("code_content")
	res, err := h.analysis.Submit(r.Context(), code)

	m := toDashboardViewModel(h.store.Current(), h.logs.Snapshot(), csrfToken(w, r))
	status := http.StatusOK
	if err != nil {
		m.Error = submitErrorMessage(err)
		m.Code = code
		status = http.StatusBadRequest
		if !errors.Is(err, application.ErrEmptyCode) {
			status = http.StatusBadGateway
		}
	} else {
		m.Notice = res.Message + ": " + string(res.Commit.Status) + ", risk " +
			strconv.FormatFloat(res.Commit.RiskScore, 'f', -1, 64)
	}

	h.renderDashboard(w, r, status, m)
}

func (h *Handler) renderPending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Refresh", "1")
	h.render(w, r, http.StatusOK, "pending", PendingPage())
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, m vm.LoginViewModel) {
	h.render(w, r, status, "login", LoginPage(m))
}

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, m vm.DashboardViewModel) {
	if secs := int(h.pollInterval.Round(time.Second) / time.Second); secs > 0 {
		w.Header().Set("Refresh", strconv.Itoa(secs))
	}
	h.render(w, r, status, "dashboard", DashboardPage(m))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := Layout(pageTitle, body).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render page", "page", page, "error", err)
	}
}

// submitErrorMessage turns a submission error into text for the banner.
func submitErrorMessage(err error) string {
	var statusErr *driven.StatusError
	switch {
	case errors.Is(err, application.ErrEmptyCode):
		return "Paste some code to analyze."
	case errors.Is(err, driven.ErrUnauthorized):
		return "The server rejected the request. Try again in a moment."
	case errors.Is(err, driven.ErrUnavailable):
		return "The analysis server is unavailable."
	case errors.As(err, &statusErr) && statusErr.Message != "":
		return statusErr.Message
	default:
		return "Analysis failed."
	}
}
