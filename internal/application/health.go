package application

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// ServerStatus summarizes the analysis server's reachability.
type ServerStatus string

const (
	ServerOK          ServerStatus = "ok"
	ServerUnreachable ServerStatus = "unreachable"
	ServerError       ServerStatus = "error"
	ServerUnknown     ServerStatus = "unknown"
)

// HealthReport is the combined view of server, session and sync state.
type HealthReport struct {
	Server      ServerStatus
	ServerError string
	Session     model.SessionState
	SyncArmed   bool
	LastSync    time.Time
	SyncError   string
	CheckedAt   time.Time
}

// SessionViewer exposes a read-only session. *SessionStore satisfies it.
type SessionViewer interface {
	Current() model.Session
}

// SnapshotReader exposes the published log snapshot. *LogSyncLoop satisfies it.
type SnapshotReader interface {
	Snapshot() model.LogSnapshot
}

// HealthService assembles a HealthReport. It depends only on port interfaces.
type HealthService struct {
	checker  driven.HealthChecker
	sessions SessionViewer
	logs     SnapshotReader
}

// NewHealthService creates a HealthService. sessions and logs may be nil.
func NewHealthService(checker driven.HealthChecker, sessions SessionViewer, logs SnapshotReader) *HealthService {
	return &HealthService{
		checker:  checker,
		sessions: sessions,
		logs:     logs,
	}
}

// Check probes the server and reads local state. It never fails; problems are
// reported in the HealthReport.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Server:    ServerUnknown,
		Session:   model.StateUninitialized,
		CheckedAt: time.Now().UTC(),
	}

	if s.checker != nil {
		err := s.checker.Health(ctx)
		report.Server = classifyServer(err)
		if err != nil {
			report.ServerError = err.Error()
		}
	}

	if s.sessions != nil {
		report.Session = s.sessions.Current().State
	}

	if s.logs != nil {
		snap := s.logs.Snapshot()
		report.SyncArmed = snap.Armed
		report.LastSync = snap.FetchedAt
		report.SyncError = snap.LastError
	}

	return report
}

// classifyServer maps a probe error onto a ServerStatus.
func classifyServer(err error) ServerStatus {
	switch {
	case err == nil:
		return ServerOK
	case errors.Is(err, driven.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ServerUnreachable
	default:
		return ServerError
	}
}
