package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/models"
)

// ReapHandler is called once for every record the reaper removes.
type ReapHandler func(ctx context.Context, roomID string, rec models.PresenceRecord)

// Reaper periodically removes presence records whose connection stopped refreshing
// its liveness (process crash, partition, missed disconnect).
type Reaper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	onReap   ReapHandler
	logger   *zap.Logger
}

// NewReaper creates a reaper. onReap may be nil.
func NewReaper(store *Store, ttl, interval time.Duration, onReap ReapHandler, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = ttl / 3
	}
	return &Reaper{store: store, ttl: ttl, interval: interval, onReap: onReap, logger: logger}
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("presence reaper started", zap.Duration("ttl", r.ttl), zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("presence reaper stopping")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every room and returns how many records were removed.
// Errors are logged; the next interval retries.
func (r *Reaper) Sweep(ctx context.Context) int {
	rooms, err := r.store.Rooms(ctx)
	if err != nil {
		r.logger.Warn("reaper list rooms failed", zap.Error(err))
		return 0
	}
	total := 0
	for _, roomID := range rooms {
		reaped, err := r.store.Reap(ctx, roomID, r.ttl)
		if err != nil {
			r.logger.Warn("reaper sweep failed", zap.String("room_id", roomID), zap.Error(err))
		}
		for _, rec := range reaped {
			r.logger.Info("presence expired",
				zap.String("room_id", roomID),
				zap.String("participant_id", rec.ParticipantID),
			)
			if r.onReap != nil {
				r.onReap(ctx, roomID, rec)
			}
		}
		total += len(reaped)
	}
	return total
}
