package sessionlog

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/middleware"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/response"
)

// Presenters decides who may read a webinar's attendance.
type Presenters interface {
	IsHostOrPresenter(ctx context.Context, roomID, userID string) (bool, error)
}

// Handler handles GET /webinars/:id/attendees.
type Handler struct {
	repo       *Repository
	presenters Presenters
}

// NewHandler creates a session log handler.
func NewHandler(repo *Repository, presenters Presenters) *Handler {
	return &Handler{repo: repo, presenters: presenters}
}

// GetAttendees handles GET /webinars/:id/attendees (host or speaker: attendees with watch time).
func (h *Handler) GetAttendees(c *gin.Context) {
	webinarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	caller := middleware.Identity(c)
	ok := caller.Role == models.RoleAdmin
	if !ok {
		ok, err = h.presenters.IsHostOrPresenter(c.Request.Context(), webinarID.String(), caller.ParticipantID)
	}
	if errors.Is(err, errs.ErrRoomNotFound) {
		response.NotFound(c, "webinar not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to check access")
		return
	}
	if !ok {
		response.Forbidden(c, "only the host or a speaker can list attendees")
		return
	}
	list, err := h.repo.ListByWebinar(c.Request.Context(), webinarID)
	if err != nil {
		response.Internal(c, "failed to list attendees")
		return
	}
	agg, err := h.repo.GetWatchTimeAggregates(c.Request.Context(), webinarID)
	if err != nil {
		response.Internal(c, "failed to aggregate watch time")
		return
	}
	response.OK(c, gin.H{"attendees": list, "summary": agg})
}
