package webinars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

// Repository handles webinar persistence.
type Repository struct {
	pool            *pgxpool.Pool
	defaultCapacity int
}

// NewRepository creates a webinar repository. Rows with capacity 0 report defaultCapacity.
func NewRepository(pool *pgxpool.Pool, defaultCapacity int) *Repository {
	return &Repository{pool: pool, defaultCapacity: defaultCapacity}
}

// Create inserts a new scheduled webinar hosted by hostID.
func (r *Repository) Create(ctx context.Context, title string, hostID uuid.UUID, capacity int, settings models.RoomSettings) (*models.Webinar, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	const q = `INSERT INTO webinars (id, title, host_id, capacity, settings, state)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, title, hostID, capacity, raw, string(models.StateScheduled)).Scan(&id); err != nil {
		return nil, err
	}
	return r.GetWebinar(ctx, id.String())
}

// GetWebinar returns the webinar backing roomID, or errs.ErrRoomNotFound.
func (r *Repository) GetWebinar(ctx context.Context, roomID string) (*models.Webinar, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return nil, errs.ErrRoomNotFound
	}
	const q = `SELECT id, title, host_id, capacity, settings, state, started_at, ended_at
		FROM webinars WHERE id = $1`
	var (
		w        models.Webinar
		wid      uuid.UUID
		hostID   uuid.UUID
		settings []byte
		state    string
	)
	err = r.pool.QueryRow(ctx, q, id).Scan(&wid, &w.Title, &hostID, &w.Capacity, &settings, &state, &w.StartedAt, &w.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	w.ID = wid.String()
	w.HostID = hostID.String()
	w.State = models.State(state)
	w.Settings = models.DefaultRoomSettings()
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &w.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %s: %w", roomID, err)
		}
	}
	if w.Capacity <= 0 {
		w.Capacity = r.defaultCapacity
	}
	return &w, nil
}

// TransitionState moves the webinar from one state to the next, stamping started_at or ended_at.
// It reports false when the row was no longer in state from.
func (r *Repository) TransitionState(ctx context.Context, roomID string, from, to models.State, at time.Time) (bool, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return false, errs.ErrRoomNotFound
	}
	var q string
	switch to {
	case models.StateLive:
		q = `UPDATE webinars SET state = $3, started_at = $4, updated_at = NOW() WHERE id = $1 AND state = $2`
	case models.StateEnded:
		q = `UPDATE webinars SET state = $3, ended_at = $4, updated_at = NOW() WHERE id = $1 AND state = $2`
	default:
		return false, errs.ErrInvalidState
	}
	tag, err := r.pool.Exec(ctx, q, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IsHostOrPresenter reports whether userID hosts the webinar or is listed as one of its speakers.
func (r *Repository) IsHostOrPresenter(ctx context.Context, roomID, userID string) (bool, error) {
	w, err := r.GetWebinar(ctx, roomID)
	if err != nil {
		return false, err
	}
	if w.IsHost(userID) {
		return true, nil
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false, nil
	}
	wid, _ := uuid.Parse(w.ID)
	const q = `SELECT 1 FROM webinar_speakers WHERE webinar_id = $1 AND user_id = $2`
	var exists int
	err = r.pool.QueryRow(ctx, q, wid, uid).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AddSpeaker adds a speaker to a webinar.
func (r *Repository) AddSpeaker(ctx context.Context, webinarID, userID uuid.UUID) error {
	const q = `INSERT INTO webinar_speakers (webinar_id, user_id) VALUES ($1, $2)
		ON CONFLICT (webinar_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, webinarID, userID)
	return err
}
