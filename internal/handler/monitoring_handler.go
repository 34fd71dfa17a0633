package handler

import (
	"net/http"

	"skylearn-chat/internal/middleware"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler serves the support dashboard. Guests never see it.
type MonitoringHandler struct {
	service *services.MonitoringService
}

func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{service: service}
}

func (h *MonitoringHandler) Stats(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok || who.IsGuest() {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(stats))
}

func (h *MonitoringHandler) Sessions(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok || who.IsGuest() {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	sessions, err := h.service.Sessions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"sessions": sessions}))
}
