package middleware

import (
	"context"
	"net/http"
	"strings"

	"skylearn-chat/internal/domain/identity"
	"skylearn-chat/internal/services"
	"skylearn-chat/internal/transport/httpdto"
	"skylearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware resolves the caller's identity from the bearer token.
// Guest tokens issued at support-thread creation pass through the same
// verification; their claims carry the guest kind.
func AuthMiddleware(identities *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := identities.Resolve(services.Credential{BearerToken: extractBearer(c)})
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}
		setIdentity(c, who)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves an identity when a credential is present
// but lets anonymous requests through. Used by the support-thread creation
// endpoint, which serves unauthenticated visitors.
func OptionalAuthMiddleware(identities *services.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token != "" {
			if who, err := identities.Resolve(services.Credential{BearerToken: token}); err == nil {
				setIdentity(c, who)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, who identity.Identity) {
	c.Set(identityKey, who)
	ctx := context.WithValue(c.Request.Context(), logger.IdentityKey, who.ID)
	c.Request = c.Request.WithContext(ctx)
}

// IdentityFrom returns the resolved identity of the current request.
func IdentityFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	who, ok := v.(identity.Identity)
	return who, ok
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
