package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/response"
)

// RequireRole allows only callers whose identity carries one of roles. Must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, ok := c.Get(ContextIdentity)
		id, isIdentity := v.(models.Identity)
		if !ok || !isIdentity {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
