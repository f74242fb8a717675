package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"field-gateway/internal/model"
	"field-gateway/internal/store"
)

// fakeRemote records inserts in memory and fails on demand.
type fakeRemote struct {
	mu        sync.Mutex
	reachable bool
	failFor   func(model.Record) bool
	panicOn   bool
	rows      []model.Record
	nextID    int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{reachable: true}
}

func (f *fakeRemote) Insert(_ context.Context, r model.Record) (model.RemoteAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("driver bug")
	}
	if f.failFor != nil && f.failFor(r) {
		return model.RemoteAck{}, errors.New("remote rejected insert")
	}
	f.nextID++
	f.rows = append(f.rows, r)
	return model.RemoteAck{RemoteID: f.nextID}, nil
}

func (f *fakeRemote) IsReachable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

func (f *fakeRemote) Rows() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Record(nil), f.rows...)
}

// downStore is a local store whose database cannot be reached.
type downStore struct {
	store.Store
}

func (downStore) Ping(context.Context) error { return errors.New("disk I/O error") }

func newLocalStore(t *testing.T) store.Store {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "local.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gormDB)
}

func submitN(t *testing.T, s store.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Submit(context.Background(), model.Submission{Type: "temperature", Name: "probe", Value: float64(i), Unit: "°C"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestEngine_FullRunDrainsPending(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	engine := NewEngine(local, rc, time.Minute, 0)
	ids := submitN(t, local, 5)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Batch)
	assert.Equal(t, 5, result.Synced)
	assert.Zero(t, result.Failed)

	pending, err := local.Pending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rows := rc.Rows()
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, ids[i], r.ID, "records are replayed in insertion order")
	}
}

func TestEngine_ScenarioSingleTemperature(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	engine := NewEngine(local, rc, time.Minute, 0)
	ctx := context.Background()

	_, err := local.Submit(ctx, model.Submission{Type: "temperature", Value: 25.3, Unit: "°C"})
	require.NoError(t, err)

	pending, err := local.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Synced)

	_, err = engine.RunOnce(ctx)
	require.NoError(t, err)

	pending, err = local.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)
	rows := rc.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 25.3, rows[0].Value)
}

func TestEngine_PartialFailureKeepsOnlyFailedRecordPending(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	engine := NewEngine(local, rc, time.Minute, 0)
	ids := submitN(t, local, 5)
	k := ids[2]
	rc.failFor = func(r model.Record) bool { return r.ID == k }

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Synced)
	assert.Equal(t, 1, result.Failed)

	pending, err := local.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, k, pending[0].ID)

	rc.failFor = nil
	result, err = engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batch)
	assert.Equal(t, 1, result.Synced)

	pending, err = local.Pending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, rc.Rows(), 5)
}

func TestEngine_RemoteUnreachableLeavesPendingUntouched(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	rc.reachable = false
	engine := NewEngine(local, rc, time.Minute, 0)
	submitN(t, local, 3)

	before, err := local.Pending(context.Background(), 0)
	require.NoError(t, err)

	result, err := engine.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.True(t, result.Aborted)

	after, err := local.Pending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, rc.Rows())
	assert.Equal(t, ActivityDegraded, engine.Status().Activity)
}

func TestEngine_LocalUnreachableAborts(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	engine := NewEngine(downStore{local}, rc, time.Minute, 0)
	submitN(t, local, 2)

	_, err := engine.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLocalUnavailable)
	assert.Empty(t, rc.Rows())

	pending, err := local.Pending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestEngine_PanicIsContained(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	rc.panicOn = true
	engine := NewEngine(local, rc, time.Minute, 0)
	submitN(t, local, 1)

	var result RunResult
	assert.NotPanics(t, func() { result = engine.safeRun(context.Background(), "test") })
	assert.True(t, result.Aborted)

	status := engine.Status()
	assert.False(t, status.Running)
	assert.Equal(t, ActivityDegraded, status.Activity)
}

func TestEngine_TriggerRunsImmediately(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	engine := NewEngine(local, rc, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return engine.Status().Runs >= 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := local.Submit(context.Background(), model.Submission{Type: "button", Name: "Button", Value: 1})
	require.NoError(t, err)
	engine.Trigger("button")

	require.Eventually(t, func() bool {
		s := engine.Status()
		return s.LastRun != nil && s.LastRun.Trigger == "button" && s.LastRun.Synced == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, rc.Rows(), 1)

	cancel()
	<-done
}

func TestEngine_TriggerCoalesces(t *testing.T) {
	engine := NewEngine(newLocalStore(t), newFakeRemote(), time.Hour, 0)
	engine.Trigger("a")
	engine.Trigger("b")
	assert.Len(t, engine.trigger, 1)
	assert.Equal(t, "a", <-engine.trigger)
}

func TestEngine_PeriodicRunsContinueAfterFailures(t *testing.T) {
	local := newLocalStore(t)
	rc := newFakeRemote()
	rc.reachable = false
	engine := NewEngine(local, rc, 20*time.Millisecond, 5*time.Millisecond)
	submitN(t, local, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.Eventually(t, func() bool { return engine.Status().Runs >= 3 }, 5*time.Second, 5*time.Millisecond)

	rc.mu.Lock()
	rc.reachable = true
	rc.mu.Unlock()

	require.Eventually(t, func() bool { return len(rc.Rows()) == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return engine.Status().Activity == ActivityActive }, 5*time.Second, 5*time.Millisecond)
}

func TestNewEngine_RetryIntervalBounds(t *testing.T) {
	e := NewEngine(nil, nil, time.Minute, 0)
	assert.Equal(t, time.Minute, e.retryInterval)

	e = NewEngine(nil, nil, time.Minute, 2*time.Minute)
	assert.Equal(t, time.Minute, e.retryInterval)

	e = NewEngine(nil, nil, time.Minute, 30*time.Second)
	assert.Equal(t, 30*time.Second, e.retryInterval)
}
