package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-webinar/live/internal/auth"
	"github.com/aura-webinar/live/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc *auth.JWTService, roles ...models.Role) *gin.Engine {
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	g := r.Group("/", JWT(svc))
	if len(roles) > 0 {
		g.Use(RequireRole(roles...))
	}
	g.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, Identity(c))
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := svc.Generate(uuid.New(), "a@example.com", "Ada", "audience")
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"displayName":"Ada"`)
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc, models.RoleAdmin, models.RoleSpeaker)

	tok, _ := svc.Generate(uuid.New(), "a@example.com", "", "audience")
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1))
	req := httptest.NewRequest("OPTIONS", "/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketOrigin(t *testing.T) {
	check := WebSocketOrigin("http://localhost:3000, https://app.example.org")
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "https://app.example.org")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.org")
	assert.False(t, check(req))

	assert.True(t, WebSocketOrigin("*")(req))
}

func TestLoggerCarriesParticipant(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/rooms/:id/participants", JWT(svc), func(c *gin.Context) { c.Status(http.StatusOK) })

	userID := uuid.New()
	tok, err := svc.Generate(userID, "a@example.com", "Ada", "audience")
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/rooms/r1/participants", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(httptest.NewRecorder(), req)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/rooms/r1/participants", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, userID.String(), first["participant_id"])
	assert.Equal(t, "r1", first["room_id"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	denied := entries[1].ContextMap()
	assert.NotContains(t, denied, "participant_id")
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
