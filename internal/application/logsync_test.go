package application_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
	"github.com/ericfisherdev/scipguard/internal/domain/port/driven"
)

var (
	recordsA = []model.LogRecord{
		{CommitID: "a1", CommitHash: "aaaa", Status: model.CommitStatusAccepted, RiskScore: 12},
	}
	recordsB = []model.LogRecord{
		{CommitID: "b2", CommitHash: "bbbb", Status: model.CommitStatusRejected, RiskScore: 91},
		{CommitID: "b1", CommitHash: "cccc", Status: model.CommitStatusAccepted, RiskScore: 40},
	}
)

func newLoop(t *testing.T, f *scriptedFetcher, interval time.Duration) *application.LogSyncLoop {
	t.Helper()
	loop := application.NewLogSyncLoop(f, interval, nil)
	t.Cleanup(loop.Close)
	return loop
}

func TestArm_EmptyTokenIsNoop(t *testing.T) {
	f := &scriptedFetcher{}
	loop := newLoop(t, f, 5*time.Millisecond)

	loop.Arm("")
	time.Sleep(30 * time.Millisecond)

	assert.False(t, loop.Armed())
	assert.Zero(t, f.callCount())
	assert.ErrorIs(t, loop.RefreshNow(context.Background()), application.ErrNotArmed)
}

func TestArm_ImmediateFirstPollThenInterval(t *testing.T) {
	const interval = 80 * time.Millisecond
	f := &scriptedFetcher{fallback: fetchResult{records: recordsA}}
	loop := newLoop(t, f, interval)

	armedAt := time.Now()
	loop.Arm("t1")

	require.Eventually(t, func() bool { return f.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	calls := f.callsCopy()

	assert.Less(t, calls[0].Start.Sub(armedAt), interval/2, "first fetch must not wait for the interval")
	assert.GreaterOrEqual(t, calls[1].Start.Sub(calls[0].End), interval,
		"second fetch must start no earlier than one interval after the first completes")
	assert.Equal(t, model.Credential("t1"), calls[0].Token)
}

func TestUnauthorized_DoesNotCascade(t *testing.T) {
	// A session is live alongside the loop; any transition would show up here.
	store := application.NewSessionStore(loginReplying(aliceReply), newMemoryKV(), nil)
	store.Restore(context.Background())
	require.True(t, store.Login(context.Background(), "a@b.com", "x").OK())
	var transitions int
	t.Cleanup(store.Subscribe(func(model.Session) { transitions++ }))

	f := &scriptedFetcher{
		script: []fetchResult{
			{records: recordsA},
			{err: driven.ErrUnauthorized},
			{err: fmt.Errorf("fetch logs: %w", driven.ErrUnauthorized)},
			{records: recordsB},
		},
		fallback: fetchResult{records: recordsB},
	}
	loop := newLoop(t, f, 5*time.Millisecond)
	events := observe(t, loop)

	loop.Arm(store.Token())

	var seen []observedEvent
	for range 4 {
		seen = append(seen, nextEvent(t, events))
	}

	kinds := make([]application.SyncEventKind, len(seen))
	for i, ev := range seen {
		kinds[i] = ev.Event.Kind
	}
	assert.Equal(t, []application.SyncEventKind{
		application.SyncSucceeded,
		application.SyncUnauthorized,
		application.SyncUnauthorized,
		application.SyncSucceeded,
	}, kinds)

	// The 401s leave the previous records and no transient error.
	for _, ev := range seen[1:3] {
		assert.Equal(t, recordsA, ev.Snapshot.Records)
		assert.Empty(t, ev.Snapshot.LastError)
		assert.True(t, ev.Snapshot.Armed)
	}
	assert.Equal(t, recordsB, seen[3].Snapshot.Records)

	assert.True(t, loop.Armed(), "polling continues after 401")
	assert.True(t, store.Current().Authenticated())
	assert.Zero(t, transitions, "a 401 must never change the session")
}

func TestOtherFailure_KeepsRecordsAndReportsError(t *testing.T) {
	f := &scriptedFetcher{
		script: []fetchResult{
			{records: recordsA},
			{err: &driven.StatusError{StatusCode: 500, Message: "boom"}},
			{err: fmt.Errorf("fetch logs: %w", driven.ErrMalformedResponse)},
			{records: recordsB},
		},
		fallback: fetchResult{records: recordsB},
	}
	loop := newLoop(t, f, 5*time.Millisecond)
	events := observe(t, loop)

	loop.Arm("t1")

	first := nextEvent(t, events)
	require.Equal(t, application.SyncSucceeded, first.Event.Kind)

	failed := nextEvent(t, events)
	require.Equal(t, application.SyncFailed, failed.Event.Kind)
	assert.Equal(t, recordsA, failed.Snapshot.Records)
	assert.Contains(t, failed.Snapshot.LastError, "boom")

	malformed := nextEvent(t, events)
	require.Equal(t, application.SyncFailed, malformed.Event.Kind)
	assert.ErrorIs(t, malformed.Event.Err, driven.ErrMalformedResponse)
	assert.Equal(t, recordsA, malformed.Snapshot.Records)

	recovered := nextEvent(t, events)
	require.Equal(t, application.SyncSucceeded, recovered.Event.Kind)
	assert.Equal(t, recordsB, recovered.Snapshot.Records)
	assert.Empty(t, recovered.Snapshot.LastError)
	assert.False(t, recovered.Snapshot.FetchedAt.IsZero())
}

func TestSuccess_EmptyListReplacesRecords(t *testing.T) {
	f := &scriptedFetcher{
		script:   []fetchResult{{records: recordsA}, {records: nil}},
		fallback: fetchResult{records: nil},
	}
	loop := newLoop(t, f, 5*time.Millisecond)
	events := observe(t, loop)

	loop.Arm("t1")
	nextEvent(t, events)
	second := nextEvent(t, events)

	require.Equal(t, application.SyncSucceeded, second.Event.Kind)
	assert.NotNil(t, second.Snapshot.Records)
	assert.Empty(t, second.Snapshot.Records)
}

func TestDisarm_DiscardsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := &scriptedFetcher{
		// Ignores ctx so the response arrives after Disarm.
		handler: func(_ context.Context, call int, _ model.Credential) fetchResult {
			if call == 0 {
				close(started)
				<-release
			}
			return fetchResult{records: recordsA}
		},
	}
	loop := newLoop(t, f, 5*time.Millisecond)
	events := observe(t, loop)

	loop.Arm("t1")
	<-started
	loop.Disarm()
	close(release)

	ev := nextEvent(t, events)
	assert.Equal(t, application.SyncDiscarded, ev.Event.Kind)

	snap := loop.Snapshot()
	assert.Nil(t, snap.Records)
	assert.False(t, snap.Armed)
	assert.True(t, snap.FetchedAt.IsZero())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.callCount(), "no fetch may start after Disarm")
}

func TestDisarm_CancelsInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	f := &scriptedFetcher{
		handler: func(ctx context.Context, _ int, _ model.Credential) fetchResult {
			close(started)
			<-ctx.Done()
			return fetchResult{err: ctx.Err()}
		},
	}
	loop := newLoop(t, f, time.Hour)
	events := observe(t, loop)

	loop.Arm("t1")
	<-started
	loop.Disarm()

	ev := nextEvent(t, events)
	assert.Equal(t, application.SyncDiscarded, ev.Event.Kind)
	assert.ErrorIs(t, ev.Event.Err, context.Canceled)
	assert.Empty(t, loop.Snapshot().LastError)
}

func TestDisarm_ClearsSnapshotAndStopsPolling(t *testing.T) {
	f := &scriptedFetcher{fallback: fetchResult{records: recordsA}}
	loop := newLoop(t, f, 5*time.Millisecond)
	events := observe(t, loop)

	loop.Arm("t1")
	waitForKind(t, events, application.SyncSucceeded)
	before := loop.Snapshot()
	require.Equal(t, recordsA, before.Records)

	loop.Disarm()
	after := loop.Snapshot()
	assert.Nil(t, after.Records)
	assert.False(t, after.Armed)
	assert.Greater(t, after.Epoch, before.Epoch)

	count := f.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, f.callCount())
}

func TestArm_SameTokenIsNoop(t *testing.T) {
	f := &scriptedFetcher{fallback: fetchResult{records: recordsA}}
	loop := newLoop(t, f, time.Hour)
	events := observe(t, loop)

	loop.Arm("t1")
	nextEvent(t, events)
	epoch := loop.Snapshot().Epoch

	loop.Arm("t1")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, epoch, loop.Snapshot().Epoch)
	assert.Equal(t, 1, f.callCount())
}

func TestArm_NewTokenStartsNewEpoch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := &scriptedFetcher{
		handler: func(_ context.Context, _ int, token model.Credential) fetchResult {
			if token == "t1" {
				close(started)
				<-release
				return fetchResult{records: recordsA}
			}
			return fetchResult{records: recordsB}
		},
	}
	loop := newLoop(t, f, time.Hour)
	events := observe(t, loop)

	loop.Arm("t1")
	<-started
	firstEpoch := loop.Snapshot().Epoch

	loop.Arm("t2")
	ok := waitForKind(t, events, application.SyncSucceeded)
	assert.Greater(t, ok.Event.Epoch, firstEpoch)
	assert.Equal(t, recordsB, ok.Snapshot.Records)

	close(release)
	stale := waitForKind(t, events, application.SyncDiscarded)
	assert.Equal(t, firstEpoch, stale.Event.Epoch)

	assert.Equal(t, recordsB, loop.Snapshot().Records, "old epoch result must not leak into the new one")

	var t1Calls int
	for _, c := range f.callsCopy() {
		if c.Token == "t1" {
			t1Calls++
		}
	}
	assert.Equal(t, 1, t1Calls)
}

func TestArm_NewTokenClearsPreviousRecords(t *testing.T) {
	f := &scriptedFetcher{
		handler: func(ctx context.Context, _ int, token model.Credential) fetchResult {
			if token == "t2" {
				<-ctx.Done()
				return fetchResult{err: ctx.Err()}
			}
			return fetchResult{records: recordsA}
		},
	}
	loop := newLoop(t, f, time.Hour)
	events := observe(t, loop)

	loop.Arm("t1")
	waitForKind(t, events, application.SyncSucceeded)

	loop.Arm("t2")
	snap := loop.Snapshot()
	assert.Nil(t, snap.Records)
	assert.True(t, snap.Armed)
}

func TestRefreshNow(t *testing.T) {
	f := &scriptedFetcher{
		script: []fetchResult{
			{records: recordsA},
			{records: recordsB},
			{err: driven.ErrUnauthorized},
		},
	}
	loop := newLoop(t, f, time.Hour)
	events := observe(t, loop)

	loop.Arm("t1")
	nextEvent(t, events)

	require.NoError(t, loop.RefreshNow(context.Background()))
	assert.Equal(t, 2, f.callCount())
	assert.Equal(t, recordsB, loop.Snapshot().Records)

	err := loop.RefreshNow(context.Background())
	assert.ErrorIs(t, err, driven.ErrUnauthorized)
	assert.Equal(t, recordsB, loop.Snapshot().Records)

	loop.Disarm()
	assert.ErrorIs(t, loop.RefreshNow(context.Background()), application.ErrNotArmed)
}

func TestClose_StopsForGood(t *testing.T) {
	f := &scriptedFetcher{fallback: fetchResult{records: recordsA}}
	loop := application.NewLogSyncLoop(f, 5*time.Millisecond, nil)
	events := observe(t, loop)

	loop.Arm("t1")
	nextEvent(t, events)
	loop.Close()

	count := f.callCount()
	loop.Arm("t2")
	time.Sleep(30 * time.Millisecond)

	assert.False(t, loop.Armed())
	assert.Equal(t, count, f.callCount())
}

func TestNewLogSyncLoop_DefaultInterval(t *testing.T) {
	assert.Equal(t, 3*time.Second, application.DefaultPollInterval)
}
