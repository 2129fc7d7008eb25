package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

var (
	// ErrEmptyCode is returned when a submission has no code.
	ErrEmptyCode = errors.New("code is empty")

	// ErrNotAuthenticated is returned when a submission is attempted without
	// a credential.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// TokenSource supplies the current credential. *SessionStore satisfies it.
type TokenSource interface {
	Token() model.Credential
}

// Refresher triggers an out-of-schedule log fetch. *LogSyncLoop satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// AnalysisService submits code for server-side analysis. The analyzed commit
// reaches the log snapshot through the next poll, not from the response.
type AnalysisService struct {
	analyzer  driven.CommitAnalyzer
	tokens    TokenSource
	refresher Refresher
	logger    *slog.Logger
}

// NewAnalysisService creates an AnalysisService. refresher may be nil.
func NewAnalysisService(analyzer driven.CommitAnalyzer, tokens TokenSource, refresher Refresher, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		analyzer:  analyzer,
		tokens:    tokens,
		refresher: refresher,
		logger:    logger,
	}
}

// Submit sends code for analysis under the current credential. A 401 is
// returned as driven.ErrUnauthorized and does not end the session.
func (s *AnalysisService) Submit(ctx context.Context, code string) (model.AnalysisResult, error) {
	if strings.TrimSpace(code) == "" {
		return model.AnalysisResult{}, ErrEmptyCode
	}

	token := s.tokens.Token()
	if token.IsZero() {
		return model.AnalysisResult{}, ErrNotAuthenticated
	}

	result, err := s.analyzer.AnalyzeCommit(ctx, token, code)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("submit commit: %w", err)
	}

	s.logger.Info("commit analyzed",
		"commit_id", result.Commit.CommitID,
		"status", result.Commit.Status,
		"risk_score", result.Commit.RiskScore,
	)

	if s.refresher != nil {
		if err := s.refresher.RefreshNow(ctx); err != nil && !errors.Is(err, ErrNotArmed) {
			s.logger.Debug("post-submit refresh failed", "error", err)
		}
	}

	return result, nil
}
