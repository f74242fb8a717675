// Package dispatch turns command records from the local store into actuator
// actions.
//
// Records are never modified. The dispatcher remembers the highest command
// record id it has handled and only acts on newer ones; on its first poll it
// skips commands older than the configured maximum age so that a restart
// does not replay stale commands.
package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"field-gateway/internal/model"
	"field-gateway/internal/parse"
	"field-gateway/internal/store"
)

// Dispatcher polls recent command records and hands them to the worker pool.
type Dispatcher struct {
	store    store.Store
	pool     *WorkerPool
	display  *Display
	interval time.Duration
	limit    int
	maxAge   time.Duration
	now      func() time.Time

	highWater int64
	seeded    bool
}

// NewDispatcher creates a dispatcher reading the limit most recent records.
func NewDispatcher(s store.Store, pool *WorkerPool, interval time.Duration, limit int, maxAge time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    s,
		pool:     pool,
		display:  &Display{},
		interval: interval,
		limit:    limit,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Display returns the LCD state owned by the dispatcher.
func (d *Dispatcher) Display() *Display {
	return d.display
}

// Run starts the workers and polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	logrus.WithField("interval", d.interval).Info("Starting command dispatcher")
	d.pool.Start(ctx)

	d.PollOnce(ctx)

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Command dispatcher shutting down")
			d.pool.Wait()
			return
		case <-timer.C:
			d.PollOnce(ctx)
			timer.Reset(d.interval)
		}
	}
}

// PollOnce dispatches new recognized commands, oldest first, and returns how
// many were queued.
func (d *Dispatcher) PollOnce(ctx context.Context) int {
	records, err := d.store.Recent(ctx, d.limit)
	if err != nil {
		logrus.WithError(err).Warn("Command poll failed")
		return 0
	}

	commands := make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.Type == model.TypeCommand && r.ID > d.highWater {
			commands = append(commands, r)
		}
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].ID < commands[j].ID })

	first := !d.seeded
	now := d.now()

	dispatched := 0
	for _, r := range commands {
		log := logrus.WithFields(logrus.Fields{"record_id": r.ID, "comment": r.Comment})

		if first && d.maxAge > 0 && now.Sub(r.Timestamp) > d.maxAge {
			log.Debug("Skipping stale command from before startup")
			d.highWater = r.ID
			continue
		}
		cmd, ok := parse.ParseCommand(r.Comment)
		if !ok {
			log.Debug("Ignoring unrecognized command")
			d.highWater = r.ID
			continue
		}
		// A command only counts as handled once a worker has it.
		if !d.pool.Dispatch(ctx, Job{RecordID: r.ID, Command: cmd}) {
			log.Debug("Dispatch interrupted, command left for the next poll")
			return dispatched
		}
		d.highWater = r.ID
		if cmd.Kind == parse.CommandLCD {
			d.display.Set(DisplayMessage{Text: cmd.Arg, RecordID: r.ID, UpdatedAt: now})
		}
		dispatched++
	}
	d.seeded = true
	return dispatched
}
