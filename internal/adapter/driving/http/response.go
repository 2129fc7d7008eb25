package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries an informational message.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the JSON body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body for the register endpoint.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// AnalyzeRequest is the JSON body for the analyze endpoint.
type AnalyzeRequest struct {
	CodeContent string `json:"code_content"`
}

// IdentityResponse is the JSON representation of the signed-in user.
type IdentityResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// SessionResponse is the JSON representation of the session. The credential
// is never exposed.
type SessionResponse struct {
	State         string            `json:"state"`
	Authenticated bool              `json:"authenticated"`
	User          *IdentityResponse `json:"user,omitempty"`
}

// LogRecordResponse is the JSON representation of one audit record.
type LogRecordResponse struct {
	CommitID   string  `json:"commit_id"`
	CommitHash string  `json:"commit_hash"`
	Timestamp  string  `json:"timestamp"`
	Status     string  `json:"status"`
	RiskScore  float64 `json:"risk_score"`
	RiskLevel  string  `json:"risk_level"`
	UserID     string  `json:"user_id,omitempty"`
	DLTTxHash  string  `json:"dlt_tx_hash,omitempty"`
}

// LogsResponse is the JSON representation of the published log snapshot.
type LogsResponse struct {
	Logs      []LogRecordResponse `json:"logs"`
	FetchedAt string              `json:"fetched_at,omitempty"`
	Epoch     uint64              `json:"epoch"`
	Armed     bool                `json:"armed"`
	LastError string              `json:"last_error,omitempty"`
}

// AnalyzeResponse is the JSON representation of a commit submission result.
type AnalyzeResponse struct {
	Message string            `json:"message"`
	Commit  LogRecordResponse `json:"commit"`
}

// HealthResponse is the JSON representation of the health check endpoint.
// Status reports this process; Server reports the analysis server.
type HealthResponse struct {
	Status      string `json:"status"`
	Time        string `json:"time"`
	Server      string `json:"server,omitempty"`
	ServerError string `json:"server_error,omitempty"`
	Session     string `json:"session,omitempty"`
	SyncArmed   bool   `json:"sync_armed"`
	LastSync    string `json:"last_sync,omitempty"`
	SyncError   string `json:"sync_error,omitempty"`
}

// toSessionResponse converts a domain Session to its JSON representation.
func toSessionResponse(s model.Session) SessionResponse {
	resp := SessionResponse{
		State:         s.State.String(),
		Authenticated: s.Authenticated(),
	}
	if s.Identity != nil {
		resp.User = &IdentityResponse{
			UserID:   s.Identity.UserID,
			Email:    s.Identity.Email,
			Username: s.Identity.Username,
		}
	}
	return resp
}

// toLogRecordResponse converts a domain LogRecord to its JSON representation.
func toLogRecordResponse(r model.LogRecord) LogRecordResponse {
	return LogRecordResponse{
		CommitID:   r.CommitID,
		CommitHash: r.CommitHash,
		Timestamp:  formatTime(r.Timestamp),
		Status:     string(r.Status),
		RiskScore:  r.RiskScore,
		RiskLevel:  string(r.RiskLevel()),
		UserID:     r.UserID,
		DLTTxHash:  r.DLTTxHash,
	}
}

// toLogsResponse converts a LogSnapshot to its JSON representation. Logs is
// always a non-nil array.
func toLogsResponse(snap model.LogSnapshot) LogsResponse {
	logs := make([]LogRecordResponse, 0, len(snap.Records))
	for _, r := range snap.Records {
		logs = append(logs, toLogRecordResponse(r))
	}

	return LogsResponse{
		Logs:      logs,
		FetchedAt: formatTime(snap.FetchedAt),
		Epoch:     snap.Epoch,
		Armed:     snap.Armed,
		LastError: snap.LastError,
	}
}

// toHealthResponse converts an application HealthReport to its JSON representation.
func toHealthResponse(report application.HealthReport) HealthResponse {
	return HealthResponse{
		Status:      "ok",
		Time:        report.CheckedAt.UTC().Format(time.RFC3339),
		Server:      string(report.Server),
		ServerError: report.ServerError,
		Session:     report.Session.String(),
		SyncArmed:   report.SyncArmed,
		LastSync:    formatTime(report.LastSync),
		SyncError:   report.SyncError,
	}
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
