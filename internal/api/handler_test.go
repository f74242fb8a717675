package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-gateway/config"
	"field-gateway/internal/dispatch"
	"field-gateway/internal/errs"
	"field-gateway/internal/model"
	"field-gateway/internal/store"
	"field-gateway/internal/syncer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSubmitter struct {
	subs []model.Submission
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, sub model.Submission) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.subs = append(f.subs, sub)
	return int64(len(f.subs)), nil
}

type fakeRecords struct {
	records []model.Record
	pending int64
	err     error
	limits  []int
}

func (f *fakeRecords) Recent(_ context.Context, limit int) ([]model.Record, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeRecords) PendingCount(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.pending, nil
}

type fakeSync struct{ st syncer.Status }

func (f fakeSync) Status() syncer.Status { return f.st }

func setupRouter(h *Handler) *gin.Engine {
	return NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateBurst: 1000, CacheTTLSeconds: 0})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPostData_StoresWithDefaults(t *testing.T) {
	sub := &fakeSubmitter{}
	r := setupRouter(NewHandler(sub, &fakeRecords{}, fakeSync{}, nil, 1))

	w := do(r, http.MethodPost, "/api/data", `{"type":"temperature","value":22.5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","message":"Data stored locally","id":1}`, w.Body.String())

	require.Len(t, sub.subs, 1)
	assert.Equal(t, model.Submission{Type: "temperature", Name: "Web Data", Value: 22.5, Unit: "", Comment: "From website"}, sub.subs[0])
}

func TestPostData_MissingPayload(t *testing.T) {
	sub := &fakeSubmitter{}
	r := setupRouter(NewHandler(sub, &fakeRecords{}, fakeSync{}, nil, 1))

	for _, body := range []string{"", "{}", "null", "{not json"} {
		w := do(r, http.MethodPost, "/api/data", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"No data provided"}`, w.Body.String(), body)
	}
	assert.Empty(t, sub.subs)
}

func TestPostData_StorageFailure(t *testing.T) {
	sub := &fakeSubmitter{err: fmt.Errorf("%w: %w", store.ErrStorageUnavailable, errs.Connection("submit", errors.New("disk full")))}
	r := setupRouter(NewHandler(sub, &fakeRecords{}, fakeSync{}, nil, 1))

	w := do(r, http.MethodPost, "/api/data", `{"type":"button","value":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.JSONEq(t, `{"error":"Failed to store data"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "disk full")
}

func TestPostData_RejectedByIngest(t *testing.T) {
	sub := &fakeSubmitter{err: errs.Malformed("type is required")}
	r := setupRouter(NewHandler(sub, &fakeRecords{}, fakeSync{}, nil, 1))

	w := do(r, http.MethodPost, "/api/data", `{"type":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	records := &fakeRecords{records: []model.Record{{ID: 3}, {ID: 2}}, pending: 2}
	last := &syncer.RunResult{RunID: "abc", Trigger: "timer", Batch: 2, Synced: 2}
	r := setupRouter(NewHandler(&fakeSubmitter{}, records, fakeSync{st: syncer.Status{Activity: syncer.ActivityActive, LastRun: last}}, nil, 1))

	w := do(r, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status       string            `json:"status"`
		LocalEntries int               `json:"local_entries"`
		Pending      *int64            `json:"pending"`
		LastSync     string            `json:"last_sync"`
		LastRun      *syncer.RunResult `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, 1, resp.LocalEntries)
	require.NotNil(t, resp.Pending)
	assert.Equal(t, int64(2), *resp.Pending)
	assert.Equal(t, "active", resp.LastSync)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "abc", resp.LastRun.RunID)
	assert.Equal(t, []int{1}, records.limits)
}

func TestGetStatus_StoreDown(t *testing.T) {
	records := &fakeRecords{err: errors.New("locked")}
	r := setupRouter(NewHandler(&fakeSubmitter{}, records, fakeSync{st: syncer.Status{Activity: syncer.ActivityIdle}}, nil, 1))

	w := do(r, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"running","local_entries":0,"pending":null,"last_sync":"idle","last_run":null}`, w.Body.String())
}

func TestGetRecords_Limits(t *testing.T) {
	records := &fakeRecords{records: []model.Record{{ID: 2, Type: "light"}, {ID: 1, Type: "temperature"}}}
	r := setupRouter(NewHandler(&fakeSubmitter{}, records, fakeSync{}, nil, 1))

	w := do(r, http.MethodGet, "/api/records", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got []model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	do(r, http.MethodGet, "/api/records?limit=1000", "")
	assert.Equal(t, []int{20, 200}, records.limits)

	w = do(r, http.MethodGet, "/api/records?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/records?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDisplay(t *testing.T) {
	r := setupRouter(NewHandler(&fakeSubmitter{}, &fakeRecords{}, fakeSync{}, nil, 1))
	w := do(r, http.MethodGet, "/api/display", "")
	assert.JSONEq(t, `{"display":null}`, w.Body.String())

	disp := &dispatch.Display{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	disp.Set(dispatch.DisplayMessage{Text: "hello", RecordID: 7, UpdatedAt: at})
	r = setupRouter(NewHandler(&fakeSubmitter{}, &fakeRecords{}, fakeSync{}, disp, 1))
	w = do(r, http.MethodGet, "/api/display", "")
	assert.JSONEq(t, `{"display":{"text":"hello","record_id":7,"updated_at":"2026-03-01T12:00:00Z"}}`, w.Body.String())
}

func TestRouter_RateLimited(t *testing.T) {
	h := NewHandler(&fakeSubmitter{}, &fakeRecords{}, fakeSync{}, nil, 1)
	r := NewRouter(h, config.ServerConfig{RateLimitPerSec: 0.001, RateBurst: 1})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/status", "").Code)
}
