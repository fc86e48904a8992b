package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

// UserChecker reports whether an account may still connect.
type UserChecker interface {
	IsActiveUser(ctx context.Context, userID string) (bool, error)
}

// Authenticator resolves a bearer token to a connection identity.
type Authenticator struct {
	jwt   *JWTService
	users UserChecker
}

// NewAuthenticator creates an authenticator. A nil users checker skips the account check.
func NewAuthenticator(jwt *JWTService, users UserChecker) *Authenticator {
	return &Authenticator{jwt: jwt, users: users}
}

// Authenticate validates the token and confirms the account is active.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("missing token: %w", errs.ErrAuth)
	}
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%v: %w", err, errs.ErrAuth)
	}
	id := claims.Identity()
	if a.users == nil {
		return id, nil
	}
	active, err := a.users.IsActiveUser(ctx, id.ParticipantID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("check user %s: %w: %w", id.ParticipantID, errs.ErrStoreUnavailable, err)
	}
	if !active {
		return models.Identity{}, fmt.Errorf("user %s inactive: %w", id.ParticipantID, errs.ErrAuth)
	}
	return id, nil
}

// TokenFromRequest returns the bearer token from the Authorization header, or the
// token query parameter used by browser WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
