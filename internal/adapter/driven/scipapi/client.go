// Package scipapi implements the SCIPAPI port as a JSON-over-HTTP client of
// the analysis server.
package scipapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SCIPAPI = (*Client)(nil)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Client implements driven.SCIPAPI. Authorized calls go through an
// oauth2.Transport that adds the Bearer header; every request carries an
// X-Request-ID for correlation with server logs.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout}, baseURL, logger)
}

// NewClientWithHTTPClient creates a Client on top of a custom http.Client.
// Tests use it to inject an httptest server's client.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parsing base URL: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    u,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login posts credentials. Any decodable body is returned as a LoginReply,
// whatever the status code; a missing access token means the login failed.
func (c *Client) Login(ctx context.Context, email, password string) (driven.LoginReply, error) {
	status, body, err := c.do(ctx, c.httpClient, http.MethodPost, pathLogin, loginRequest{Email: email, Password: password})
	if err != nil {
		return driven.LoginReply{}, fmt.Errorf("login: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return driven.LoginReply{}, fmt.Errorf("login (status %d): %w: %w", status, driven.ErrMalformedResponse, err)
	}

	return driven.LoginReply{
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID,
		Email:       resp.Email,
		Username:    resp.Username,
		Error:       resp.Error,
		Message:     resp.Message,
	}, nil
}

// Register creates an account. It never returns a token.
func (c *Client) Register(ctx context.Context, email, password, username string) (driven.RegisterReply, error) {
	status, body, err := c.do(ctx, c.httpClient, http.MethodPost, pathRegister, registerRequest{
		Email:    email,
		Password: password,
		Username: username,
	})
	if err != nil {
		return driven.RegisterReply{}, fmt.Errorf("register: %w", err)
	}

	var resp messageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return driven.RegisterReply{}, fmt.Errorf("register (status %d): %w: %w", status, driven.ErrMalformedResponse, err)
	}

	return driven.RegisterReply{
		Created: isSuccess(status) && resp.Error == "",
		Message: resp.Message,
		Error:   resp.Error,
	}, nil
}

// FetchLogs reads the audit records visible to token, in server order.
func (c *Client) FetchLogs(ctx context.Context, token model.Credential) ([]model.LogRecord, error) {
	if token.IsZero() {
		return nil, driven.ErrNoCredential
	}

	status, body, err := c.do(ctx, c.authorized(token), http.MethodGet, pathLogs, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	if err := checkStatus(status, body); err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	var resp logsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("fetch logs: %w: %w", driven.ErrMalformedResponse, err)
	}

	records := make([]model.LogRecord, 0, len(resp.Logs))
	for _, raw := range resp.Logs {
		rec, err := mapLogRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("fetch logs: %w: %w", driven.ErrMalformedResponse, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// AnalyzeCommit submits code for analysis under token.
func (c *Client) AnalyzeCommit(ctx context.Context, token model.Credential, code string) (model.AnalysisResult, error) {
	if token.IsZero() {
		return model.AnalysisResult{}, driven.ErrNoCredential
	}

	status, body, err := c.do(ctx, c.authorized(token), http.MethodPost, pathAnalyze, analyzeRequest{CodeContent: code})
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze commit: %w", err)
	}
	if err := checkStatus(status, body); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze commit: %w", err)
	}

	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze commit: %w: %w", driven.ErrMalformedResponse, err)
	}

	result := model.AnalysisResult{Message: resp.Message}
	if resp.Commit != nil {
		rec, err := mapLogRecord(*resp.Commit)
		if err != nil {
			return model.AnalysisResult{}, fmt.Errorf("analyze commit: %w: %w", driven.ErrMalformedResponse, err)
		}
		result.Commit = rec
	}

	return result, nil
}

// Health probes the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, c.httpClient, http.MethodGet, pathHealth, nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := checkStatus(status, body); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

// authorized returns an http.Client that sends token as a Bearer credential.
// A fresh client per call keeps tokens from different sessions apart.
func (c *Client) authorized(token model.Credential) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.String(),
		TokenType:   "Bearer",
	})

	return &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: c.httpClient.Transport},
		Timeout:   c.httpClient.Timeout,
	}
}

// do sends a JSON request and returns the status code and body. Transport
// failures are reported as driven.ErrUnavailable; context cancellation is
// returned as the context's error.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload any) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: %w", driven.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %w", driven.ErrUnavailable, err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(RequestIDHeader),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return resp.StatusCode, body, nil
}

// checkStatus maps non-2xx responses onto port errors.
func checkStatus(status int, body []byte) error {
	if isSuccess(status) {
		return nil
	}
	if status == http.StatusUnauthorized {
		return driven.ErrUnauthorized
	}

	var resp messageResponse
	_ = json.Unmarshal(body, &resp)
	return &driven.StatusError{StatusCode: status, Message: resp.Error}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
