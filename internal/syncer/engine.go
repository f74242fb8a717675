// Package syncer replays locally buffered records to the remote store.
//
// A run reads every pending record in insertion order and inserts each one
// remotely, marking it synced right after its own acknowledgement. A record
// whose insert fails stays pending for the next run; the rest of the batch
// continues. A crash between a remote insert and the local mark resends that
// record on the next run, so remote delivery is at-least-once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"field-gateway/internal/errs"
	"field-gateway/internal/remote"
	"field-gateway/internal/store"
)

var (
	// ErrLocalUnavailable aborts a run when the local store cannot be reached.
	ErrLocalUnavailable = errors.New("local store unavailable")
	// ErrRemoteUnavailable aborts a run when the remote store cannot be reached.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// Activity summarizes recent engine behaviour for status reporting.
type Activity string

const (
	ActivityIdle     Activity = "idle"     // no run has completed yet
	ActivityActive   Activity = "active"   // last run reached the remote store
	ActivityDegraded Activity = "degraded" // last run was aborted
)

// RunResult describes one synchronization run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Batch      int       `json:"batch"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted"`
	Error      string    `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Activity Activity   `json:"activity"`
	Running  bool       `json:"running"`
	Runs     int        `json:"runs"`
	LastRun  *RunResult `json:"last_run,omitempty"`
}

// Engine moves pending records from the local store to the remote store.
type Engine struct {
	local         store.Store
	remote        remote.Client
	interval      time.Duration
	retryInterval time.Duration
	trigger       chan string
	now           func() time.Time

	mu     sync.RWMutex
	status Status
}

// NewEngine creates an engine that runs every interval, or after
// retryInterval when the previous scheduled run was aborted.
func NewEngine(local store.Store, rc remote.Client, interval, retryInterval time.Duration) *Engine {
	if retryInterval <= 0 || retryInterval > interval {
		retryInterval = interval
	}
	return &Engine{
		local:         local,
		remote:        rc,
		interval:      interval,
		retryInterval: retryInterval,
		trigger:       make(chan string, 1),
		now:           time.Now,
		status:        Status{Activity: ActivityIdle},
	}
}

// Trigger requests an immediate run from Run. Requests made while one is
// already queued are coalesced. It never blocks.
func (e *Engine) Trigger(reason string) {
	select {
	case e.trigger <- reason:
	default:
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	if s.LastRun != nil {
		last := *s.LastRun
		s.LastRun = &last
	}
	return s
}

// Run executes a run immediately and then on every tick of the interval and
// on every Trigger, until ctx is done. Runs never overlap.
func (e *Engine) Run(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"interval":       e.interval,
		"retry_interval": e.retryInterval,
	}).Info("Starting synchronization engine")

	next := e.scheduled(ctx, "startup")

	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Synchronization engine shutting down")
			return
		case <-timer.C:
			timer.Reset(e.scheduled(ctx, "interval"))
		case reason := <-e.trigger:
			e.safeRun(ctx, reason)
		}
	}
}

// scheduled performs a periodic run and returns the delay before the next one.
func (e *Engine) scheduled(ctx context.Context, trigger string) time.Duration {
	result := e.safeRun(ctx, trigger)
	if result.Aborted {
		return e.retryInterval
	}
	return e.interval
}

// safeRun executes RunOnce, converting a panic into an aborted result so a
// failing run never takes the process down.
func (e *Engine) safeRun(ctx context.Context, trigger string) (result RunResult) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Synchronization run panicked")
			result = RunResult{
				Trigger:    trigger,
				StartedAt:  e.now(),
				FinishedAt: e.now(),
				Aborted:    true,
				Error:      fmt.Sprintf("panic: %v", r),
			}
			e.finish(result)
		}
	}()
	result, _ = e.runOnce(ctx, trigger)
	return result
}

// RunOnce performs a single synchronization run. It returns an error only
// when the run was aborted before touching any record.
func (e *Engine) RunOnce(ctx context.Context) (RunResult, error) {
	return e.runOnce(ctx, "manual")
}

func (e *Engine) runOnce(ctx context.Context, trigger string) (RunResult, error) {
	result := RunResult{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.now(),
	}
	log := logrus.WithFields(logrus.Fields{"run_id": result.RunID, "trigger": trigger})

	e.mu.Lock()
	e.status.Running = true
	e.mu.Unlock()

	abort := func(err error) (RunResult, error) {
		result.Aborted = true
		result.Error = err.Error()
		result.FinishedAt = e.now()
		e.finish(result)
		log.WithError(err).Warn("Synchronization run aborted")
		return result, err
	}

	if err := e.local.Ping(ctx); err != nil {
		return abort(fmt.Errorf("%w: %w", ErrLocalUnavailable, errs.Connection("ping local", err)))
	}
	if !e.remote.IsReachable(ctx) {
		return abort(fmt.Errorf("%w: %w", ErrRemoteUnavailable, errs.ErrConnection))
	}

	batch, err := e.local.Pending(ctx, 0)
	if err != nil {
		return abort(fmt.Errorf("%w: %w", ErrLocalUnavailable, err))
	}
	result.Batch = len(batch)

	for _, record := range batch {
		if ctx.Err() != nil {
			log.Info("Context cancelled, leaving the rest of the batch pending")
			break
		}

		rlog := log.WithFields(logrus.Fields{"id": record.ID, "type": record.Type})
		ack, err := e.remote.Insert(ctx, record)
		if err != nil {
			result.Failed++
			rlog.WithError(err).Warn("Remote insert failed, record stays pending")
			continue
		}
		if err := e.local.MarkSynced(ctx, record.ID); err != nil {
			// The remote row exists; the next run will send it again.
			result.Failed++
			rlog.WithError(err).WithField("remote_id", ack.RemoteID).Error("Failed to mark record synced")
			continue
		}
		result.Synced++
		rlog.WithField("remote_id", ack.RemoteID).Debug("Record synchronized")
	}

	result.FinishedAt = e.now()
	e.finish(result)

	entry := log.WithFields(logrus.Fields{
		"batch":    result.Batch,
		"synced":   result.Synced,
		"failed":   result.Failed,
		"duration": result.FinishedAt.Sub(result.StartedAt),
	})
	if result.Failed > 0 {
		entry.Warn("Synchronization run finished with failures")
	} else if result.Batch > 0 {
		entry.Info("Synchronization run finished")
	} else {
		entry.Debug("Synchronization run finished, nothing pending")
	}
	return result, nil
}

func (e *Engine) finish(result RunResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastRun = &result
	if result.Aborted {
		e.status.Activity = ActivityDegraded
	} else {
		e.status.Activity = ActivityActive
	}
}
