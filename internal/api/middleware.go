package api

import (
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userKey = "user"

// identityMiddleware resolves the caller once per request. Anonymous requests pass
// through with no user; the services decide whether one is needed.
func (h *Handler) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.identity.CurrentUser(c.Request.Context(), c.Request)
		if errors.Is(err, auth.ErrInvalidIdentity) {
			h.writeError(c, apperr.Unauthenticated())
			return
		}
		if err != nil {
			h.logger.Error("Failed to resolve user", zap.Error(err))
			h.writeError(c, apperr.Internal("resolve user", err))
			return
		}
		if user != nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			abortWithError(c, apperr.Unauthenticated())
			return
		}
		if !user.IsAdmin() {
			abortWithError(c, apperr.New(apperr.KindForbidden, "Admin access required"))
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
