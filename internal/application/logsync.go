package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

// DefaultPollInterval is the pause between the end of one fetch and the start
// of the next.
const DefaultPollInterval = 3 * time.Second

// ErrNotArmed is returned by RefreshNow when no credential is armed.
var ErrNotArmed = errors.New("log sync not armed")

// SyncEventKind classifies the outcome of one fetch attempt.
type SyncEventKind int

const (
	// SyncSucceeded means the snapshot was replaced.
	SyncSucceeded SyncEventKind = iota
	// SyncUnauthorized means the server answered 401. Nothing changed.
	SyncUnauthorized
	// SyncFailed means a transient failure was recorded. Records were kept.
	SyncFailed
	// SyncDiscarded means the attempt finished after its epoch ended.
	SyncDiscarded
)

// String returns a human-readable name for the event kind.
func (k SyncEventKind) String() string {
	switch k {
	case SyncSucceeded:
		return "succeeded"
	case SyncUnauthorized:
		return "unauthorized"
	case SyncFailed:
		return "failed"
	case SyncDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// SyncEvent reports one completed fetch attempt.
type SyncEvent struct {
	Kind    SyncEventKind
	Epoch   uint64
	Records int
	Err     error
	At      time.Time
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	done chan error
}

// LogSyncLoop polls the audit log list while armed with a credential and
// publishes the latest snapshot. It never changes the session: a 401 is
// reported and polling continues.
//
// Each Arm with a new credential starts a new epoch with its own goroutine.
// Results are published only while their epoch is still current.
type LogSyncLoop struct {
	fetcher  driven.LogFetcher
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	epoch     uint64
	armed     bool
	closed    bool
	token     model.Credential
	cancel    context.CancelFunc
	refreshCh chan refreshRequest
	runDone   chan struct{}
	records   []model.LogRecord
	fetchedAt time.Time
	lastError string

	wg sync.WaitGroup

	subsMu    sync.Mutex
	subs      map[uint64]func(SyncEvent)
	nextSubID uint64
}

// NewLogSyncLoop creates a disarmed loop. A non-positive interval selects
// DefaultPollInterval.
func NewLogSyncLoop(fetcher driven.LogFetcher, interval time.Duration, logger *slog.Logger) *LogSyncLoop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSyncLoop{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		subs:     make(map[uint64]func(SyncEvent)),
	}
}

// Arm starts polling under token with an immediate first attempt. An empty
// token is a no-op, as is re-arming with the token already armed. A different
// token ends the current epoch and clears the snapshot first.
func (l *LogSyncLoop) Arm(token model.Credential) {
	if token.IsZero() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || (l.armed && l.token == token) {
		return
	}

	l.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	l.armed = true
	l.token = token
	l.cancel = cancel
	l.refreshCh = make(chan refreshRequest)
	l.runDone = make(chan struct{})

	l.wg.Add(1)
	go l.run(ctx, l.epoch, token, l.refreshCh, l.runDone)

	l.logger.Info("log sync armed", "epoch", l.epoch, "interval", l.interval)
}

// Disarm ends the current epoch. No attempt starts after Disarm returns, an
// in-flight request is canceled, and any late result is discarded.
func (l *LogSyncLoop) Disarm() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.armed {
		return
	}
	l.stopLocked()
	l.logger.Info("log sync disarmed", "epoch", l.epoch)
}

// Close disarms the loop permanently and waits for its goroutines to exit.
func (l *LogSyncLoop) Close() {
	l.mu.Lock()
	l.closed = true
	l.stopLocked()
	l.mu.Unlock()

	l.wg.Wait()
}

// stopLocked bumps the epoch, cancels the running goroutine and clears the
// published snapshot. Callers hold mu.
func (l *LogSyncLoop) stopLocked() {
	l.epoch++
	if l.cancel != nil {
		l.cancel()
	}
	l.armed = false
	l.token = ""
	l.cancel = nil
	l.refreshCh = nil
	l.runDone = nil
	l.records = nil
	l.fetchedAt = time.Time{}
	l.lastError = ""
}

// Armed reports whether the loop is polling.
func (l *LogSyncLoop) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// Snapshot returns a copy of the published state.
func (l *LogSyncLoop) Snapshot() model.LogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var records []model.LogRecord
	if l.records != nil {
		records = make([]model.LogRecord, len(l.records))
		copy(records, l.records)
	}

	return model.LogSnapshot{
		Records:   records,
		FetchedAt: l.fetchedAt,
		Epoch:     l.epoch,
		Armed:     l.armed,
		LastError: l.lastError,
	}
}

// RefreshNow runs an attempt in the current epoch without waiting for the
// interval, and returns its fetch error. The schedule restarts from its end.
func (l *LogSyncLoop) RefreshNow(ctx context.Context) error {
	l.mu.Lock()
	if !l.armed {
		l.mu.Unlock()
		return ErrNotArmed
	}
	refreshCh, runDone := l.refreshCh, l.runDone
	l.mu.Unlock()

	req := refreshRequest{done: make(chan error, 1)}

	select {
	case refreshCh <- req:
	case <-runDone:
		return ErrNotArmed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to receive an event after every attempt. Events are
// delivered on the polling goroutine; the next attempt waits for fn to return.
func (l *LogSyncLoop) Subscribe(fn func(SyncEvent)) (unsubscribe func()) {
	l.subsMu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = fn
	l.subsMu.Unlock()

	return func() {
		l.subsMu.Lock()
		delete(l.subs, id)
		l.subsMu.Unlock()
	}
}

// run polls for one epoch until ctx is canceled. The first attempt fires
// immediately; the timer is reset only after each attempt completes.
func (l *LogSyncLoop) run(ctx context.Context, epoch uint64, token model.Credential, refreshCh <-chan refreshRequest, done chan struct{}) {
	defer l.wg.Done()
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			_ = l.attempt(ctx, epoch, token)
			timer.Reset(l.interval)
		case req := <-refreshCh:
			timer.Stop()
			req.done <- l.attempt(ctx, epoch, token)
			timer.Reset(l.interval)
		}
	}
}

// attempt fetches once and publishes the outcome if epoch is still current.
func (l *LogSyncLoop) attempt(ctx context.Context, epoch uint64, token model.Credential) error {
	// A timer that fired alongside Disarm must not start a fetch.
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	records, err := l.fetcher.FetchLogs(ctx, token)

	l.mu.Lock()
	if epoch != l.epoch {
		current := l.epoch
		l.mu.Unlock()

		l.logger.Debug("discarding stale log fetch", "epoch", epoch, "current_epoch", current)
		l.emit(SyncEvent{Kind: SyncDiscarded, Epoch: epoch, Err: err, At: time.Now()})
		return err
	}

	ev := SyncEvent{Epoch: epoch, Err: err, At: time.Now()}
	switch {
	case err == nil:
		if records == nil {
			records = []model.LogRecord{}
		}
		l.records = records
		l.fetchedAt = ev.At
		l.lastError = ""
		ev.Kind = SyncSucceeded
		ev.Records = len(records)
	case errors.Is(err, driven.ErrUnauthorized):
		ev.Kind = SyncUnauthorized
	default:
		l.lastError = err.Error()
		ev.Kind = SyncFailed
	}
	l.mu.Unlock()

	switch ev.Kind {
	case SyncSucceeded:
		l.logger.Debug("log sync complete",
			"epoch", epoch,
			"records", ev.Records,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	case SyncUnauthorized:
		l.logger.Warn("log fetch unauthorized, keeping session", "epoch", epoch)
	default:
		l.logger.Error("log fetch failed", "epoch", epoch, "error", err)
	}

	l.emit(ev)
	return err
}

func (l *LogSyncLoop) emit(ev SyncEvent) {
	l.subsMu.Lock()
	listeners := make([]func(SyncEvent), 0, len(l.subs))
	for _, fn := range l.subs {
		listeners = append(listeners, fn)
	}
	l.subsMu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
