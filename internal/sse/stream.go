package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"skylearn-chat/internal/broadcast"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"
	"skylearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const heartbeatInterval = 15 * time.Second

// Subscriber buffers events for one open fallback stream. Send never
// blocks; an overrun subscriber silently drops frames, which the client
// recovers from with a history fetch.
type Subscriber struct {
	events chan []byte
}

func newSubscriber() *Subscriber {
	return &Subscriber{events: make(chan []byte, 64)}
}

func (s *Subscriber) Send(payload []byte) {
	select {
	case s.events <- payload:
	default:
	}
}

// Handler serves the fallback stream endpoint: a long-lived HTTP response
// used when the room-based live channel is unavailable. At most one
// subscriber per conversation; a new registration evicts the previous one.
type Handler struct {
	identities *services.IdentityService
	access     *services.AccessService
	registry   *broadcast.Registry
	log        *logger.Logger
}

func NewHandler(identities *services.IdentityService, access *services.AccessService, registry *broadcast.Registry, log *logger.Logger) *Handler {
	return &Handler{identities: identities, access: access, registry: registry, log: log}
}

// Stream handles GET /chat/conversations/:id/stream. Streaming clients may
// pass the bearer token as a query parameter when a header is impractical.
func (h *Handler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = extractBearer(c)
	}

	who, err := h.identities.Resolve(services.Credential{
		BearerToken: token,
		Guest:       c.Query("guest") == "true",
		GuestID:     c.Query("guest_id"),
	})
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_INPUT"))
		return
	}

	allowed, err := h.access.CanAccess(c.Request.Context(), convID, who)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("streaming unsupported", "INTERNAL_ERROR"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := newSubscriber()
	h.registry.RegisterFallback(convID, sub)
	defer h.registry.UnregisterFallback(convID, sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case payload := <-sub.events:
			writeFrame(c, flusher, payload)
		case <-heartbeat.C:
			// Keeps intermediary proxies from closing the stream.
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

// writeFrame emits one event: name / data: json frame. The envelope carries
// the event name; the data line carries the full envelope for clients that
// only read data.
func writeFrame(c *gin.Context, flusher http.Flusher, payload []byte) {
	var env broadcast.Envelope
	name := "message"
	if err := json.Unmarshal(payload, &env); err == nil && env.Event != "" {
		name = env.Event
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, payload)
	flusher.Flush()
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(value) > len(prefix) && value[:len(prefix)] == prefix {
		return value[len(prefix):]
	}
	return ""
}
