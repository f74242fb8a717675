package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"field-gateway/internal/errs"
	"field-gateway/internal/ingest"
)

// PostData handles POST /api/data. The record is stored locally and
// synchronized later; the response never waits for the remote store.
func (h *Handler) PostData(c *gin.Context) {
	var payload ingest.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	sub, err := payload.Submission()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	id, err := h.ingest.Submit(c.Request.Context(), sub)
	if err != nil {
		if errors.Is(err, errs.ErrMalformedInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).WithField("type", sub.Type).Error("Failed to store submitted record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Data stored locally",
		"id":      id,
	})
}
