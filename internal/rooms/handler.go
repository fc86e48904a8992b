// Package rooms exposes read-only REST views of live room state.
package rooms

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/middleware"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/response"
)

const maxHistory = 200

// Roster lists a room's current participants.
type Roster interface {
	List(ctx context.Context, roomID string) ([]models.PresenceRecord, error)
}

// ChatHistory reads a room's recent messages.
type ChatHistory interface {
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// Webinars resolves a room's lifecycle record.
type Webinars interface {
	Webinar(ctx context.Context, roomID string) (*models.Webinar, error)
}

// Transcripts signs download links for exported chat transcripts.
type Transcripts interface {
	PresignTranscript(ctx context.Context, roomID string) (string, error)
}

// Handler serves room views.
type Handler struct {
	roster      Roster
	chat        ChatHistory
	webinars    Webinars
	transcripts Transcripts
	iceServers  []webrtc.ICEServer
}

// NewHandler creates the room handler. transcripts may be nil when object storage is disabled.
func NewHandler(roster Roster, chat ChatHistory, webinars Webinars, transcripts Transcripts, iceServers []webrtc.ICEServer) *Handler {
	return &Handler{roster: roster, chat: chat, webinars: webinars, transcripts: transcripts, iceServers: iceServers}
}

func fail(c *gin.Context, err error, fallback string) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status >= 500 {
		msg = fallback
	}
	response.Fail(c, status, errs.Code(err), msg)
}

// Participants handles GET /rooms/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := h.webinars.Webinar(c.Request.Context(), roomID); err != nil {
		fail(c, err, "failed to load room")
		return
	}
	list, err := h.roster.List(c.Request.Context(), roomID)
	if err != nil {
		fail(c, err, "failed to list participants")
		return
	}
	response.OK(c, gin.H{"room_id": roomID, "count": len(list), "participants": list})
}

// Messages handles GET /rooms/:id/messages?limit=N.
func (h *Handler) Messages(c *gin.Context) {
	roomID := c.Param("id")
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	if _, err := h.webinars.Webinar(c.Request.Context(), roomID); err != nil {
		fail(c, err, "failed to load room")
		return
	}
	msgs, err := h.chat.History(c.Request.Context(), roomID, limit)
	if err != nil {
		fail(c, err, "failed to read messages")
		return
	}
	response.OK(c, msgs)
}

// Transcript handles GET /rooms/:id/transcript (host only, ended rooms).
func (h *Handler) Transcript(c *gin.Context) {
	if h.transcripts == nil {
		response.NotFound(c, "transcripts are not enabled")
		return
	}
	roomID := c.Param("id")
	w, err := h.webinars.Webinar(c.Request.Context(), roomID)
	if err != nil {
		fail(c, err, "failed to load room")
		return
	}
	if !w.IsHost(middleware.Identity(c).ParticipantID) {
		response.Forbidden(c, "only the host can download the transcript")
		return
	}
	if w.State != models.StateEnded {
		response.Conflict(c, "transcript is available after the webinar ends")
		return
	}
	url, err := h.transcripts.PresignTranscript(c.Request.Context(), roomID)
	if err != nil {
		response.Internal(c, "failed to sign transcript url")
		return
	}
	response.OK(c, gin.H{"room_id": roomID, "url": url})
}

// ICEServers handles GET /ice-servers.
func (h *Handler) ICEServers(c *gin.Context) {
	response.OK(c, gin.H{"iceServers": h.iceServers})
}
