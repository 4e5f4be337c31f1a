package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceattend/internal/identity"
	"faceattend/internal/realtime"
)

const (
	eventConnected = "connected"
	eventHeartbeat = "heartbeat"
)

type subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (*realtime.Subscription, error)
}

// StreamHandler pushes task notifications over server-sent events.
type StreamHandler struct {
	broker    subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler creates a new handler. heartbeat <= 0 defaults to 25s.
func NewStreamHandler(broker subscriber, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{broker: broker, heartbeat: heartbeat, logger: logger}
}

// Tasks streams new-task events for a student's class until the client
// disconnects. Teachers only receive the connected event and heartbeats.
func (h *StreamHandler) Tasks(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var events <-chan realtime.Event
	topic := ""
	if caller.Role == identity.RoleStudent && caller.ClassID != nil {
		topic = realtime.ClassTopic(*caller.ClassID)
		sub, err := h.broker.Subscribe(ctx, topic)
		if err != nil {
			Error(c, err)
			return
		}
		defer sub.Close()
		events = sub.C
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(eventConnected, gin.H{"userId": caller.ID, "role": caller.Role, "topic": topic})
	c.Writer.Flush()

	log := h.logger.With(zap.Int64("user_id", caller.ID), zap.String("topic", topic))
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(evt.Name, evt)
		case t := <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"at": t.UTC()})
		}
		c.Writer.Flush()
	}
}
