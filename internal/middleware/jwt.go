package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-webinar/live/internal/auth"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextIdentity is the key for the caller's models.Identity.
	ContextIdentity = auth.ContextIdentity
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			response.Unauthorized(c, "missing or invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextIdentity, claims.Identity())
		c.Next()
	}
}

// Identity returns the caller set by JWT.
func Identity(c *gin.Context) models.Identity {
	id, _ := c.MustGet(ContextIdentity).(models.Identity)
	return id
}
