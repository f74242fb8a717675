package api

import (
	"context"

	"field-gateway/internal/dispatch"
	"field-gateway/internal/model"
	"field-gateway/internal/syncer"
)

// Submitter stores one inbound submission.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (int64, error)
}

// RecordReader is the read side of the local store used by the API.
type RecordReader interface {
	Recent(ctx context.Context, limit int) ([]model.Record, error)
	PendingCount(ctx context.Context) (int64, error)
}

// SyncStatus reports synchronization engine state.
type SyncStatus interface {
	Status() syncer.Status
}

// DisplaySource exposes the current LCD message.
type DisplaySource interface {
	Current() (dispatch.DisplayMessage, bool)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ingest       Submitter
	records      RecordReader
	sync         SyncStatus
	display      DisplaySource
	statusSample int
}

// NewHandler creates a new API handler. display may be nil when command
// dispatch is disabled.
func NewHandler(in Submitter, records RecordReader, sync SyncStatus, display DisplaySource, statusSample int) *Handler {
	if statusSample <= 0 {
		statusSample = 1
	}
	return &Handler{
		ingest:       in,
		records:      records,
		sync:         sync,
		display:      display,
		statusSample: statusSample,
	}
}
