// Package ingest is the single entry point through which the HTTP endpoint,
// the MQTT subscriber and the hardware poller store new records.
package ingest

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"field-gateway/internal/errs"
	"field-gateway/internal/model"
	"field-gateway/internal/store"
)

// Triggerer requests an immediate synchronization run.
type Triggerer interface {
	Trigger(reason string)
}

// Ingestor validates submissions, persists them and fires the sync trigger
// for priority record types.
type Ingestor struct {
	store    store.Store
	trigger  Triggerer
	priority map[string]struct{}
}

// New creates an Ingestor. trigger may be nil when no engine is running.
func New(s store.Store, trigger Triggerer, priorityTypes []string) *Ingestor {
	priority := make(map[string]struct{}, len(priorityTypes))
	for _, t := range priorityTypes {
		priority[strings.TrimSpace(t)] = struct{}{}
	}
	return &Ingestor{store: s, trigger: trigger, priority: priority}
}

// IsPriority reports whether records of type typ trigger an immediate sync.
func (in *Ingestor) IsPriority(typ string) bool {
	_, ok := in.priority[typ]
	return ok
}

// Submit stores sub and returns the new record id. Invalid submissions fail
// with errs.ErrMalformedInput; storage failures wrap store.ErrStorageUnavailable.
func (in *Ingestor) Submit(ctx context.Context, sub model.Submission) (int64, error) {
	sub.Type = strings.TrimSpace(sub.Type)
	if sub.Type == "" {
		return 0, errs.Malformed("type must not be empty")
	}
	for _, f := range []struct {
		field string
		value string
		max   int
	}{
		{"type", sub.Type, model.MaxTypeLen},
		{"name", sub.Name, model.MaxNameLen},
		{"unit", sub.Unit, model.MaxUnitLen},
	} {
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return 0, errs.Malformed("%s is %d characters long, at most %d allowed", f.field, n, f.max)
		}
	}
	if math.IsNaN(sub.Value) || math.IsInf(sub.Value, 0) {
		return 0, errs.Malformed("value must be a finite number")
	}

	id, err := in.store.Submit(ctx, sub)
	if err != nil {
		logrus.WithError(err).WithField("type", sub.Type).Error("Failed to store record locally")
		return 0, err
	}

	if in.trigger != nil && in.IsPriority(sub.Type) {
		in.trigger.Trigger(sub.Type)
	}
	return id, nil
}
