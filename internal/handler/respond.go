package handler

import (
	"errors"
	"net/http"

	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps service errors onto HTTP statuses. Spam rejections are
// surfaced with their reason so the client can show it to the sender.
func respondError(c *gin.Context, err error) {
	var spam *services.SpamRejectedError
	if errors.As(err, &spam) {
		c.JSON(http.StatusUnprocessableEntity, httpdto.NewErrorResponse(spam.Reason, "SPAM_REJECTED"))
		return
	}

	switch {
	case errors.Is(err, chat_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, chat_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, chat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, chat_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
	case errors.Is(err, chat_errors.ErrConflict), errors.Is(err, chat_errors.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "CONFLICT"))
	case errors.Is(err, chat_errors.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
	case errors.Is(err, chat_errors.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("service unavailable", "SERVICE_UNAVAILABLE"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
	}
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
