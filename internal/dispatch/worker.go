package dispatch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"field-gateway/internal/hardware"
	"field-gateway/internal/parse"
)

// Job is one command to perform on the device.
type Job struct {
	RecordID int64
	Command  parse.Command
}

// WorkerPool performs actuator jobs on the device.
type WorkerPool struct {
	size   int
	jobs   chan Job
	device hardware.Device
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, device hardware.Device) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:   size,
		jobs:   make(chan Job, size*8),
		device: device,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logrus.WithField("worker", id).Debug("Dispatch worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.perform(ctx, job)
		case <-ctx.Done():
			logrus.WithField("worker", id).Debug("Dispatch worker shutting down")
			return
		}
	}
}

func (wp *WorkerPool) perform(ctx context.Context, job Job) {
	log := logrus.WithFields(logrus.Fields{"record_id": job.RecordID, "command": job.Command.String()})
	resp, err := wp.device.Actuate(ctx, job.Command)
	if err != nil {
		log.WithError(err).Warn("Actuator command failed")
		return
	}
	log.WithField("reply", resp.Line).Info("Actuator command performed")
}

// Dispatch queues a job, giving up when ctx is done.
func (wp *WorkerPool) Dispatch(ctx context.Context, job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}
