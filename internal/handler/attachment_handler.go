package handler

import (
	"net/http"

	"skylearn-chat/internal/middleware"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/storage"
	"skylearn-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type AttachmentHandler struct {
	store  *storage.Client
	access *services.AccessService
}

func NewAttachmentHandler(store *storage.Client, access *services.AccessService) *AttachmentHandler {
	return &AttachmentHandler{store: store, access: access}
}

// Presign hands out a short-lived upload URL. Callers must be able to
// access the conversation the attachment belongs to.
func (h *AttachmentHandler) Presign(c *gin.Context) {
	var req httpdto.PresignAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	conversationID, err := parseUUID(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversationId", "INVALID_REQUEST"))
		return
	}
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	allowed, err := h.access.CanAccess(c.Request.Context(), conversationID, who)
	if err != nil {
		respondError(c, err)
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
		return
	}

	key := storage.AttachmentKey(conversationID, req.FileName)
	uploadURL, headers, err := h.store.PresignUpload(c.Request.Context(), key, req.ContentType, req.SizeBytes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignAttachmentResponse{
		UploadURL: uploadURL,
		Key:       key,
		Headers:   headers,
	}))
}
