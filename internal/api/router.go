package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"field-gateway/config"
	"field-gateway/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logrus.StandardLogger().WriterLevel(logrus.DebugLevel)), gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// POST /api/data
		api.POST("/data", h.PostData)

		api.GET("/status", h.GetStatus)

		// GET /api/records?limit=N
		api.GET("/records", caching, h.GetRecords)
		api.GET("/display", h.GetDisplay)
	}

	return r
}
