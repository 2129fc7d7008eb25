package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/scipguard/internal/application"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// ApplyMiddleware wraps h with the standard chain. Recovery wraps the session
// scope so a missing store surfaces as a 500.
func ApplyMiddleware(h http.Handler, store *application.SessionStore, logger *slog.Logger) http.Handler {
	wrapped := sessionScopeMiddleware(store, h)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"request_id", w.Header().Get(RequestIDHeader),
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// requestIDMiddleware echoes the caller's X-Request-ID or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// sessionScopeMiddleware puts store in every request context. A nil store
// leaves the scope empty.
func sessionScopeMiddleware(store *application.SessionStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			r = r.WithContext(application.WithSessionStore(r.Context(), store))
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession admits only authenticated sessions. While the session is
// still being restored it answers 503 with Retry-After instead of 401, so
// clients do not mistake "unknown" for "logged out".
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := application.SessionStoreFrom(r.Context())

		switch application.Guard(store.Current()) {
		case application.GuardPending:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "session is being restored")
		case application.GuardDeny:
			writeError(w, http.StatusUnauthorized, "not logged in")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
