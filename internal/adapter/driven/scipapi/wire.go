package scipapi

import (
	"fmt"
	"time"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

// Endpoint paths, relative to the configured server URL.
const (
	pathLogin    = "/login"
	pathRegister = "/register"
	pathLogs     = "/api/logs"
	pathAnalyze  = "/api/analyze_commit"
	pathHealth   = "/api/health"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type logsResponse struct {
	Logs []logRecordJSON `json:"logs"`
}

type logRecordJSON struct {
	CommitID   string  `json:"commit_id"`
	CommitHash string  `json:"commit_hash"`
	Timestamp  string  `json:"timestamp"`
	Status     string  `json:"status"`
	RiskScore  float64 `json:"risk_score"`
	UserID     string  `json:"user_id"`
	DLTTxHash  string  `json:"dlt_tx_hash"`
}

type analyzeRequest struct {
	CodeContent string `json:"code_content"`
}

type analyzeResponse struct {
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Commit  *logRecordJSON `json:"commit"`
}

// Server timestamps come from Python's datetime.isoformat() on a naive UTC
// value, so they usually carry no zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func mapLogRecord(r logRecordJSON) (model.LogRecord, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("commit %s: %w", r.CommitID, err)
	}

	return model.LogRecord{
		CommitID:   r.CommitID,
		CommitHash: r.CommitHash,
		Timestamp:  ts,
		Status:     model.CommitStatus(r.Status),
		RiskScore:  r.RiskScore,
		UserID:     r.UserID,
		DLTTxHash:  r.DLTTxHash,
	}, nil
}
