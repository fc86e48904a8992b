package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueAttendance is the Redis list key for attendance close-out jobs.
	QueueAttendance = "worker:attendance"
	// QueueTranscripts is the Redis list key for chat transcript export jobs.
	QueueTranscripts = "worker:transcripts"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// PollTimeout bounds each blocking pop so the worker can observe cancellation.
	PollTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeAttendance JobType = "attendance"
	JobTypeTranscript JobType = "transcript"
)

// queueFor returns the list a job type is pushed to.
func queueFor(t JobType) string {
	if t == JobTypeTranscript {
		return QueueTranscripts
	}
	return QueueAttendance
}

// AttendancePayload is the payload for attendance jobs.
type AttendancePayload struct {
	ParticipantID string    `json:"participant_id"`
	RoomID        string    `json:"room_id"`
	JoinedAt      time.Time `json:"joined_at"`
	LeftAt        time.Time `json:"left_at"`
}

// TranscriptPayload is the payload for transcript export jobs.
type TranscriptPayload struct {
	RoomID  string    `json:"room_id"`
	EndedAt time.Time `json:"ended_at"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, t JobType, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queueFor(t), raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	return job.ID, nil
}

// EnqueueAttendance enqueues an attendance close-out job.
func (q *Queue) EnqueueAttendance(ctx context.Context, payload AttendancePayload) error {
	id, err := q.enqueue(ctx, JobTypeAttendance, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued attendance job", zap.String("job_id", id), zap.String("participant_id", payload.ParticipantID))
	return nil
}

// EnqueueTranscript enqueues a transcript export job.
func (q *Queue) EnqueueTranscript(ctx context.Context, payload TranscriptPayload) error {
	id, err := q.enqueue(ctx, JobTypeTranscript, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued transcript job", zap.String("job_id", id), zap.String("room_id", payload.RoomID))
	return nil
}

// Dequeue blocks up to PollTimeout for a job. Returns job and key (queue name); a nil job
// means nothing arrived in time.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, QueueAttendance, QueueTranscripts).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, queueFor(job.Type), raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
