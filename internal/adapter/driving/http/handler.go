// Package httphandler implements the dashboard's JSON API driving adapter.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// maxRequestBytes caps request bodies. Code submissions are the largest.
const maxRequestBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	store    *application.SessionStore
	logs     *application.LogSyncLoop
	analysis *application.AnalysisService
	health   *application.HealthService
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. health may be nil.
func NewHandler(
	store *application.SessionStore,
	logs *application.LogSyncLoop,
	analysis *application.AnalysisService,
	health *application.HealthService,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		logs:     logs,
		analysis: analysis,
		health:   health,
		logger:   logger,
	}
}

// RegisterAPIRoutes registers all API routes under /api/v1. Log and analyze
// routes require an authenticated session.
func RegisterAPIRoutes(r *mux.Router, h *Handler) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/session", h.Logout).Methods(http.MethodDelete)
	api.HandleFunc("/register", h.Register).Methods(http.MethodPost)

	api.Handle("/logs", requireSession(http.HandlerFunc(h.ListLogs))).Methods(http.MethodGet)
	api.Handle("/logs/refresh", requireSession(http.HandlerFunc(h.RefreshLogs))).Methods(http.MethodPost)
	api.Handle("/analyze", requireSession(http.HandlerFunc(h.Analyze))).Methods(http.MethodPost)
}

// NewRouter creates an http.Handler with the API routes registered and
// wrapped with the standard middleware chain. Each of mounts registers
// additional routes on the same router before the middleware is applied.
func NewRouter(h *Handler, mounts ...func(*mux.Router)) http.Handler {
	r := mux.NewRouter()
	RegisterAPIRoutes(r, h)
	for _, mount := range mounts {
		mount(r)
	}
	return ApplyMiddleware(r, h.store, h.logger)
}

// Health reports process liveness plus server and sync state. It always
// answers 200 while this process is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ok",
			Time:   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, toHealthResponse(h.health.Check(ctx)))
}

// GetSession returns the current session without the credential.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.store.Current()))
}

// Login authenticates against the analysis server.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res := h.store.Login(r.Context(), req.Email, req.Password)
	switch res.Outcome {
	case application.LoginSucceeded:
		writeJSON(w, http.StatusOK, toSessionResponse(h.store.Current()))
	case application.LoginRejected:
		writeError(w, http.StatusUnauthorized, res.Message)
	case application.LoginUnavailable:
		writeError(w, http.StatusServiceUnavailable, res.Message)
	case application.LoginSuperseded:
		writeError(w, http.StatusConflict, res.Message)
	default:
		writeError(w, http.StatusInternalServerError, res.Message)
	}
}

// Logout clears the local session. The analysis server is not contacted.
// When the persisted session cannot be cleared it answers 500: the process
// is anonymous, but a restart would restore the old session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Logout(r.Context()); err != nil {
		h.logger.Error("failed to clear persisted session", "error", err)
		writeError(w, http.StatusInternalServerError, "logged out here, but the saved session could not be removed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register creates an account. The caller must log in afterwards.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "email, password and username are required")
		return
	}

	res := h.store.Register(r.Context(), req.Email, req.Password, req.Username)
	switch res.Outcome {
	case application.RegisterCreated:
		writeJSON(w, http.StatusCreated, MessageResponse{Message: res.Message})
	case application.RegisterRejected:
		writeError(w, http.StatusBadRequest, res.Message)
	default:
		writeError(w, http.StatusServiceUnavailable, res.Message)
	}
}

// ListLogs returns the published log snapshot.
func (h *Handler) ListLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toLogsResponse(h.logs.Snapshot()))
}

// RefreshLogs fetches immediately and returns the resulting snapshot. A
// failed fetch still returns the snapshot, with the error in last_error or,
// for a 401, in the response status only.
func (h *Handler) RefreshLogs(w http.ResponseWriter, r *http.Request) {
	err := h.logs.RefreshNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toLogsResponse(h.logs.Snapshot()))
	case errors.Is(err, application.ErrNotArmed):
		writeError(w, http.StatusConflict, "log sync is not running")
	default:
		writeUpstreamError(w, h.logger, "refresh logs", err)
	}
}

// Analyze submits code for analysis. The analyzed commit shows up in the
// logs on the next poll.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.analysis.Submit(r.Context(), req.CodeContent)
	if err != nil {
		writeUpstreamError(w, h.logger, "analyze commit", err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Message: res.Message,
		Commit:  toLogRecordResponse(res.Commit),
	})
}

// decodeBody decodes a JSON request body into v. It writes a 400 and returns
// false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeUpstreamError maps application and port errors onto HTTP responses.
// A server-side 401 becomes 502: it never logs the dashboard user out.
func writeUpstreamError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var statusErr *driven.StatusError

	switch {
	case errors.Is(err, application.ErrEmptyCode):
		writeError(w, http.StatusBadRequest, "code_content is required")
	case errors.Is(err, application.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not logged in")
	case errors.Is(err, driven.ErrUnauthorized):
		logger.Warn("server rejected credential", "op", op)
		writeError(w, http.StatusBadGateway, "server rejected the credential, try again")
	case errors.Is(err, driven.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "server unavailable")
	case errors.As(err, &statusErr):
		msg := statusErr.Message
		if msg == "" {
			msg = "server error"
		}
		writeError(w, http.StatusBadGateway, msg)
	case errors.Is(err, driven.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, "malformed server response")
	default:
		logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
