package sessionlog

import (
	"context"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/queue"
)

// Enqueuer is the job queue side used for attendance.
type Enqueuer interface {
	EnqueueAttendance(ctx context.Context, payload queue.AttendancePayload) error
}

// Writer persists attendance directly.
type Writer interface {
	RecordAttendance(ctx context.Context, a models.Attendance) error
}

// QueuedRecorder hands attendance to the worker queue, writing directly when the queue
// rejects the job.
type QueuedRecorder struct {
	queue    Enqueuer
	fallback Writer
	logger   *zap.Logger
}

// NewQueuedRecorder creates a recorder. fallback may be nil.
func NewQueuedRecorder(q Enqueuer, fallback Writer, logger *zap.Logger) *QueuedRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedRecorder{queue: q, fallback: fallback, logger: logger}
}

// RecordAttendance enqueues a close-out.
func (r *QueuedRecorder) RecordAttendance(ctx context.Context, a models.Attendance) error {
	err := r.queue.EnqueueAttendance(ctx, queue.AttendancePayload{
		ParticipantID: a.ParticipantID,
		RoomID:        a.RoomID,
		JoinedAt:      a.JoinedAt,
		LeftAt:        a.LeftAt,
	})
	if err == nil {
		return nil
	}
	r.logger.Warn("attendance enqueue failed",
		zap.String("room_id", a.RoomID),
		zap.String("participant_id", a.ParticipantID),
		zap.Error(err),
	)
	if r.fallback == nil {
		return err
	}
	return r.fallback.RecordAttendance(ctx, a)
}
