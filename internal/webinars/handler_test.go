package webinars

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/middleware"
	"github.com/aura-webinar/live/internal/models"
)

type memStore struct {
	webinars map[string]*models.Webinar
	speakers map[uuid.UUID][]uuid.UUID
}

func (m *memStore) Create(_ context.Context, title string, hostID uuid.UUID, capacity int, settings models.RoomSettings) (*models.Webinar, error) {
	w := &models.Webinar{ID: uuid.NewString(), Title: title, HostID: hostID.String(), Capacity: capacity, Settings: settings, State: models.StateScheduled}
	m.webinars[w.ID] = w
	return w, nil
}

func (m *memStore) GetWebinar(_ context.Context, roomID string) (*models.Webinar, error) {
	w, ok := m.webinars[roomID]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	return w, nil
}

func (m *memStore) AddSpeaker(_ context.Context, webinarID, userID uuid.UUID) error {
	m.speakers[webinarID] = append(m.speakers[webinarID], userID)
	return nil
}

type stubLifecycle struct{ err error }

func (s stubLifecycle) Start(_ context.Context, roomID, _ string) (*models.Webinar, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Webinar{ID: roomID, State: models.StateLive}, nil
}

func (s stubLifecycle) End(_ context.Context, roomID, _ string) (*models.Webinar, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Webinar{ID: roomID, State: models.StateEnded}, nil
}

func newRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	})
	r.POST("/webinars", h.Create)
	r.GET("/webinars/:id", h.GetByID)
	r.POST("/webinars/:id/speakers", h.AddSpeaker)
	r.POST("/webinars/:id/start", h.Start)
	r.POST("/webinars/:id/end", h.End)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGet(t *testing.T) {
	store := &memStore{webinars: map[string]*models.Webinar{}, speakers: map[uuid.UUID][]uuid.UUID{}}
	host := uuid.New()
	r := newRouter(NewHandler(store, stubLifecycle{}), host)

	speaker := uuid.New()
	w := do(r, http.MethodPost, "/webinars", `{"title":"Launch","capacity":50,"speaker_ids":["`+speaker.String()+`","junk"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data models.Webinar `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, host.String(), body.Data.HostID)
	assert.Equal(t, models.ScreenShareHost, body.Data.Settings.ScreenShare)
	assert.Len(t, store.speakers[uuid.MustParse(body.Data.ID)], 1)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/webinars/"+body.Data.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/webinars/nope", "").Code)

	w = do(r, http.MethodPost, "/webinars", `{"title":"x","settings":{"screenShare":"anyone"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddSpeakerHostOnly(t *testing.T) {
	host := uuid.New()
	id := uuid.NewString()
	store := &memStore{
		webinars: map[string]*models.Webinar{id: {ID: id, HostID: host.String()}},
		speakers: map[uuid.UUID][]uuid.UUID{},
	}
	body := `{"user_id":"` + uuid.NewString() + `"}`

	other := newRouter(NewHandler(store, stubLifecycle{}), uuid.New())
	assert.Equal(t, http.StatusForbidden, do(other, http.MethodPost, "/webinars/"+id+"/speakers", body).Code)

	r := newRouter(NewHandler(store, stubLifecycle{}), host)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/webinars/"+id+"/speakers", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/webinars/"+id+"/speakers", `{"user_id":"x"}`).Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	store := &memStore{webinars: map[string]*models.Webinar{}, speakers: map[uuid.UUID][]uuid.UUID{}}
	r := newRouter(NewHandler(store, stubLifecycle{}), uuid.New())
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/webinars/w1/start", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/webinars/w1/end", "").Code)

	r = newRouter(NewHandler(store, stubLifecycle{err: errs.ErrInvalidState}), uuid.New())
	w := do(r, http.MethodPost, "/webinars/w1/end", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_state", body.Code)

	r = newRouter(NewHandler(store, stubLifecycle{err: errs.ErrForbidden}), uuid.New())
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/webinars/w1/start", "").Code)
}
