package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

type users map[string]bool

func (u users) IsActiveUser(_ context.Context, id string) (bool, error) {
	return u[id], nil
}

type failingUsers struct{}

func (failingUsers) IsActiveUser(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	tok, err := svc.Generate(id, "ada@example.com", "Ada", string(models.RoleSpeaker))
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ParticipantID: id.String(), DisplayName: "Ada", Role: models.RoleSpeaker}, claims.Identity())

	_, err = NewJWTService("other", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpiredAndUnknownRole(t *testing.T) {
	expired, err := NewJWTService("secret", -1).Generate(uuid.New(), "a@example.com", "", "audience")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	odd, err := NewJWTService("secret", 1).Generate(uuid.New(), "a@example.com", "", "superuser")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(odd)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	active, inactive := uuid.New(), uuid.New()
	a := NewAuthenticator(svc, users{active.String(): true})
	ctx := context.Background()

	tok, _ := svc.Generate(active, "a@example.com", "", "audience")
	id, err := a.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, active.String(), id.ParticipantID)
	assert.Equal(t, "a@example.com", id.DisplayName)

	tok, _ = svc.Generate(inactive, "b@example.com", "B", "audience")
	_, err = a.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, errs.ErrAuth)

	_, err = a.Authenticate(ctx, "")
	assert.ErrorIs(t, err, errs.ErrAuth)

	_, err = a.Authenticate(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, errs.ErrAuth)

	_, err = NewAuthenticator(svc, failingUsers{}).Authenticate(ctx, tok)
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, errs.ErrAuth)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic xyz")
	assert.Equal(t, "", TokenFromRequest(r))
}
