package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"field-gateway/internal/model"
	"field-gateway/internal/syncer"
)

const (
	defaultRecordsLimit = 20
	maxRecordsLimit     = 200
)

type statusResponse struct {
	Status       string            `json:"status"`
	LocalEntries int               `json:"local_entries"`
	Pending      *int64            `json:"pending"`
	LastSync     syncer.Activity   `json:"last_sync"`
	LastRun      *syncer.RunResult `json:"last_run"`
}

// GetStatus handles GET /api/status. It always answers while the process is
// alive; store failures only blank the counters.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	resp := statusResponse{Status: "running"}

	if recent, err := h.records.Recent(ctx, h.statusSample); err != nil {
		logrus.WithError(err).Warn("Status: reading recent records failed")
	} else {
		resp.LocalEntries = len(recent)
	}
	if pending, err := h.records.PendingCount(ctx); err != nil {
		logrus.WithError(err).Warn("Status: counting pending records failed")
	} else {
		resp.Pending = &pending
	}

	st := h.sync.Status()
	resp.LastSync = st.Activity
	resp.LastRun = st.LastRun

	c.JSON(http.StatusOK, resp)
}

// GetRecords handles GET /api/records?limit=N, newest first.
func (h *Handler) GetRecords(c *gin.Context) {
	limit := defaultRecordsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxRecordsLimit)
	}

	records, err := h.records.Recent(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records"})
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	c.JSON(http.StatusOK, records)
}

// GetDisplay handles GET /api/display.
func (h *Handler) GetDisplay(c *gin.Context) {
	if h.display == nil {
		c.JSON(http.StatusOK, gin.H{"display": nil})
		return
	}
	msg, ok := h.display.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"display": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"display": msg})
}
