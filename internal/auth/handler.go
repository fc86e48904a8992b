package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/live/pkg/response"
)

const (
	// ContextUserID is the gin context key holding the caller's user uuid.
	ContextUserID = "user_id"
	// ContextIdentity is the gin context key holding the caller's models.Identity.
	ContextIdentity = "identity"
)

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Me handles GET /auth/me and returns the caller's account.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := c.MustGet(ContextUserID).(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	u, err := h.repo.GetByID(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("get user", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, u)
}
