package webinars

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/middleware"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/response"
)

// Store is the webinar persistence the handler needs.
type Store interface {
	Create(ctx context.Context, title string, hostID uuid.UUID, capacity int, settings models.RoomSettings) (*models.Webinar, error)
	GetWebinar(ctx context.Context, roomID string) (*models.Webinar, error)
	AddSpeaker(ctx context.Context, webinarID, userID uuid.UUID) error
}

// Lifecycle moves a webinar through its states.
type Lifecycle interface {
	Start(ctx context.Context, roomID, requesterID string) (*models.Webinar, error)
	End(ctx context.Context, roomID, requesterID string) (*models.Webinar, error)
}

// CreateRequest is the body for POST /webinars.
type CreateRequest struct {
	Title      string               `json:"title" binding:"required,max=255"`
	Capacity   int                  `json:"capacity" binding:"min=0"`
	Settings   *models.RoomSettings `json:"settings"`
	SpeakerIDs []string             `json:"speaker_ids"` // optional; platform user IDs to add as speakers
}

// AddSpeakerRequest is the body for POST /webinars/:id/speakers.
type AddSpeakerRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// Handler handles webinar HTTP endpoints.
type Handler struct {
	store     Store
	lifecycle Lifecycle
}

// NewHandler creates a webinar handler.
func NewHandler(store Store, lifecycle Lifecycle) *Handler {
	return &Handler{store: store, lifecycle: lifecycle}
}

func fail(c *gin.Context, err error, fallback string) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status >= 500 {
		msg = fallback
	}
	response.Fail(c, status, errs.Code(err), msg)
}

// Create handles POST /webinars. The caller becomes the host.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	settings := models.DefaultRoomSettings()
	if req.Settings != nil {
		settings = *req.Settings
		switch settings.ScreenShare {
		case models.ScreenShareHost, models.ScreenSharePresenters, models.ScreenShareEveryone:
		case "":
			settings.ScreenShare = models.ScreenShareHost
		default:
			response.BadRequest(c, "invalid settings.screenShare")
			return
		}
	}

	w, err := h.store.Create(c.Request.Context(), req.Title, hostID, req.Capacity, settings)
	if err != nil {
		fail(c, err, "failed to create webinar")
		return
	}
	wid, _ := uuid.Parse(w.ID)
	for _, idStr := range req.SpeakerIDs {
		speakerID, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		_ = h.store.AddSpeaker(c.Request.Context(), wid, speakerID)
	}
	response.Created(c, w)
}

// GetByID handles GET /webinars/:id.
func (h *Handler) GetByID(c *gin.Context) {
	w, err := h.store.GetWebinar(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "failed to load webinar")
		return
	}
	response.OK(c, w)
}

// AddSpeaker handles POST /webinars/:id/speakers (host only).
func (h *Handler) AddSpeaker(c *gin.Context) {
	w, err := h.store.GetWebinar(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "failed to load webinar")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if !w.IsHost(userID.String()) {
		response.Forbidden(c, "only the host can add speakers")
		return
	}

	var req AddSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	speakerID := uuid.MustParse(req.UserID)
	webinarID := uuid.MustParse(w.ID)
	if err := h.store.AddSpeaker(c.Request.Context(), webinarID, speakerID); err != nil {
		response.Internal(c, "failed to add speaker")
		return
	}
	response.Created(c, gin.H{"webinar_id": webinarID, "user_id": speakerID})
}

// Start handles POST /webinars/:id/start (host only).
func (h *Handler) Start(c *gin.Context) {
	w, err := h.lifecycle.Start(c.Request.Context(), c.Param("id"), c.MustGet(middleware.ContextUserID).(uuid.UUID).String())
	if err != nil {
		fail(c, err, "failed to start webinar")
		return
	}
	response.OK(c, w)
}

// End handles POST /webinars/:id/end (host only).
func (h *Handler) End(c *gin.Context) {
	w, err := h.lifecycle.End(c.Request.Context(), c.Param("id"), c.MustGet(middleware.ContextUserID).(uuid.UUID).String())
	if err != nil {
		fail(c, err, "failed to end webinar")
		return
	}
	response.OK(c, w)
}
