package handler

import (
	"net/http"
	"time"

	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/middleware"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	service    *services.ConversationService
	identities *services.IdentityService
}

func NewConversationHandler(service *services.ConversationService, identities *services.IdentityService) *ConversationHandler {
	return &ConversationHandler{service: service, identities: identities}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conv, err := h.service.Create(c.Request.Context(), who, services.CreateInput{
		ParticipantIDs: req.ParticipantIDs,
		Title:          req.Title,
		IsGroup:        req.IsGroup,
		Category:       req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv, who.ID)))
}

// CreateSupport opens a support thread. Authentication is optional here:
// anonymous visitors get back a guest id and a short-lived token they must
// present on every subsequent request.
func (h *ConversationHandler) CreateSupport(c *gin.Context) {
	var req httpdto.CreateSupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	var requester *identity.Identity
	if who, ok := middleware.IdentityFrom(c); ok {
		requester = &who
	}

	thread, err := h.service.CreateSupport(c.Request.Context(), requester, services.SupportInput{
		RequesterName:  req.Name,
		RequesterEmail: req.Email,
		Category:       req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := httpdto.SupportThreadResponse{
		ConversationID: thread.Conversation.ID.String(),
		GuestID:        thread.GuestID,
		GuestToken:     thread.GuestToken,
	}
	if thread.GuestToken != "" {
		resp.ExpiresIn = int64(h.identities.GuestTokenTTL() / time.Second)
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *ConversationHandler) List(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	allSupport := c.Query("allSupport") == "true"
	items, err := h.service.List(c.Request.Context(), who, allSupport)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"conversations": httpdto.FromConversationSlice(items, who.ID),
	}))
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conv, err := h.service.GetByID(c.Request.Context(), conversationID, who)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv, who.ID)))
}

func (h *ConversationHandler) SetArchived(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	var req httpdto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if err := h.service.SetArchived(c.Request.Context(), conversationID, who, req.Archived); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"archived": req.Archived}))
}

func (h *ConversationHandler) SetStarred(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	var req httpdto.StarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if err := h.service.SetStarred(c.Request.Context(), conversationID, who, req.Starred); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"starred": req.Starred}))
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), conversationID, who); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}

func (h *ConversationHandler) AssignAgent(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	// The body is optional; without it the caller assigns themselves.
	var req httpdto.AssignAgentRequest
	_ = c.ShouldBindJSON(&req)

	agentID, err := h.service.AssignAgent(c.Request.Context(), conversationID, who, req.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"assignedAgent": agentID}))
}

func (h *ConversationHandler) Resolve(c *gin.Context) {
	conversationID, err := parseUUID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if err := h.service.Resolve(c.Request.Context(), conversationID, who); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"resolved": true}))
}

func (h *ConversationHandler) Cleanup(c *gin.Context) {
	var req httpdto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok || who.IsGuest() {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	retention := 24 * time.Hour
	if req.RetentionHours > 0 {
		retention = time.Duration(req.RetentionHours) * time.Hour
	}
	removed, err := h.service.Cleanup(c.Request.Context(), retention)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CleanupResponse{RemovedConversations: removed}))
}
