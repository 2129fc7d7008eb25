package driven

import (
	"context"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

// LoginReply is the decoded body of a login response. A reply without an
// AccessToken is a failed login; Error or Message explains why.
type LoginReply struct {
	AccessToken string
	UserID      string
	Email       string
	Username    string
	Error       string
	Message     string
}

// RegisterReply is the decoded body of a registration response.
type RegisterReply struct {
	Created bool
	Message string
	Error   string
}

// AuthAPI authenticates against the analysis server. Neither call needs a credential.
type AuthAPI interface {
	// Login returns the decoded reply for any well-formed response, including
	// rejected credentials. Only transport failures and undecodable bodies are errors.
	Login(ctx context.Context, email, password string) (LoginReply, error)
	Register(ctx context.Context, email, password, username string) (RegisterReply, error)
}

// LogFetcher reads the audit log list for the credential's owner.
type LogFetcher interface {
	// FetchLogs returns ErrUnauthorized on HTTP 401, *StatusError on other
	// non-2xx codes, ErrUnavailable on transport failure and ErrMalformedResponse
	// on an undecodable body.
	FetchLogs(ctx context.Context, token model.Credential) ([]model.LogRecord, error)
}

// CommitAnalyzer submits code for server-side analysis.
type CommitAnalyzer interface {
	AnalyzeCommit(ctx context.Context, token model.Credential, code string) (model.AnalysisResult, error)
}

// HealthChecker probes server liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SCIPAPI is the full server surface used by the client.
type SCIPAPI interface {
	AuthAPI
	LogFetcher
	CommitAnalyzer
	HealthChecker
}
