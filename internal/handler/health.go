package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// HealthHandler reports dependency reachability.
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler creates a new handler. redis may be nil when no Redis
// backend is configured.
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Check answers 200 when every configured dependency responds, else 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	healthy := true
	if h.db != nil {
		ok := h.db.Healthy(ctx)
		body["db"] = ok
		healthy = healthy && ok
	}
	if h.redis != nil {
		ok := h.redis.Healthy(ctx)
		body["redis"] = ok
		healthy = healthy && ok
	}
	status := http.StatusOK
	if !healthy {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}
