package sessionlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/live/internal/models"
)

// AttendeeRow is one row for GET /webinars/:id/attendees.
type AttendeeRow struct {
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
}

// Repository handles user_session_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordAttendance writes one closed-out session.
func (r *Repository) RecordAttendance(ctx context.Context, a models.Attendance) error {
	webinarID, err := uuid.Parse(a.RoomID)
	if err != nil {
		return fmt.Errorf("room id %q: %w", a.RoomID, err)
	}
	var userID *uuid.UUID
	if id, err := uuid.Parse(a.ParticipantID); err == nil {
		userID = &id
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_session_logs (webinar_id, user_id, joined_at, left_at, watch_seconds)
		 VALUES ($1, $2, $3, $4, $5)`,
		webinarID, userID, a.JoinedAt, a.LeftAt, a.WatchSeconds())
	return err
}

// WatchTimeAggregates holds sum of watch_seconds and distinct user count for a webinar.
type WatchTimeAggregates struct {
	TotalWatchSeconds int64 `json:"total_watch_seconds"`
	DistinctUsers     int   `json:"distinct_users"`
}

// GetWatchTimeAggregates returns total watch time and distinct user count from session logs.
func (r *Repository) GetWatchTimeAggregates(ctx context.Context, webinarID uuid.UUID) (*WatchTimeAggregates, error) {
	const q = `SELECT COALESCE(SUM(watch_seconds), 0), COUNT(DISTINCT user_id) FROM user_session_logs WHERE webinar_id = $1 AND left_at IS NOT NULL`
	var agg WatchTimeAggregates
	err := r.pool.QueryRow(ctx, q, webinarID).Scan(&agg.TotalWatchSeconds, &agg.DistinctUsers)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// ListByWebinar returns attendees for a webinar (join time, leave time, watch duration).
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]AttendeeRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, joined_at, left_at, watch_seconds
		 FROM user_session_logs WHERE webinar_id = $1 ORDER BY joined_at DESC`,
		webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []AttendeeRow
	for rows.Next() {
		var row AttendeeRow
		if err := rows.Scan(&row.UserID, &row.JoinedAt, &row.LeftAt, &row.WatchSeconds); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
