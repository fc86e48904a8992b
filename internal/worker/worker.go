package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/queue"
	"github.com/aura-webinar/live/pkg/storage"
)

// AttendanceWriter persists attendance close-outs.
type AttendanceWriter interface {
	RecordAttendance(ctx context.Context, a models.Attendance) error
}

// ChatLog reads and expires a room's retained chat.
type ChatLog interface {
	History(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
	Expire(ctx context.Context, roomID string, ttl time.Duration) error
}

// Uploader stores transcript objects.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	TranscriptsBucket() string
}

// Jobs is the queue side the processor drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Transcript is the exported document for one room.
type Transcript struct {
	RoomID     string               `json:"roomId"`
	EndedAt    time.Time            `json:"endedAt"`
	ExportedAt time.Time            `json:"exportedAt"`
	Messages   []models.ChatMessage `json:"messages"`
}

// Processor processes attendance and transcript jobs.
type Processor struct {
	attendance AttendanceWriter
	chat       ChatLog
	s3         Uploader
	queue      Jobs
	// chatTTL is applied to a room's chat keys after a successful export; 0 keeps them.
	chatTTL    time.Duration
	historyMax int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewProcessor creates a job processor. s3 may be nil, in which case transcript jobs are skipped.
func NewProcessor(attendance AttendanceWriter, chat ChatLog, s3 Uploader, q Jobs, historyMax int, chatTTL time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		attendance: attendance,
		chat:       chat,
		s3:         s3,
		queue:      q,
		chatTTL:    chatTTL,
		historyMax: historyMax,
		backoff:    queue.RetryBackoff,
		logger:     logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeAttendance:
		return p.processAttendance(ctx, job)
	case queue.JobTypeTranscript:
		return p.processTranscript(ctx, job)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

func (p *Processor) processAttendance(ctx context.Context, job *queue.Job) error {
	var payload queue.AttendancePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	a := models.Attendance{
		ParticipantID: payload.ParticipantID,
		RoomID:        payload.RoomID,
		JoinedAt:      payload.JoinedAt,
		LeftAt:        payload.LeftAt,
	}
	if err := p.attendance.RecordAttendance(ctx, a); err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	p.logger.Debug("attendance recorded",
		zap.String("room_id", a.RoomID),
		zap.String("participant_id", a.ParticipantID),
		zap.Int64("watch_seconds", a.WatchSeconds()),
	)
	return nil
}

func (p *Processor) processTranscript(ctx context.Context, job *queue.Job) error {
	var payload queue.TranscriptPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.s3 == nil {
		p.logger.Info("transcript export disabled, skipping", zap.String("room_id", payload.RoomID))
		return nil
	}
	msgs, err := p.chat.History(ctx, payload.RoomID, p.historyMax)
	if err != nil {
		return fmt.Errorf("read chat: %w", err)
	}
	body, err := json.Marshal(Transcript{
		RoomID:     payload.RoomID,
		EndedAt:    payload.EndedAt,
		ExportedAt: time.Now().UTC(),
		Messages:   msgs,
	})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	key := storage.TranscriptKey(payload.RoomID)
	url, err := p.s3.Upload(ctx, p.s3.TranscriptsBucket(), key, "application/json", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if p.chatTTL > 0 {
		if err := p.chat.Expire(ctx, payload.RoomID, p.chatTTL); err != nil {
			p.logger.Warn("expire chat failed", zap.String("room_id", payload.RoomID), zap.Error(err))
		}
	}
	p.logger.Info("transcript exported",
		zap.String("room_id", payload.RoomID),
		zap.String("s3_key", key),
		zap.String("url", url),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
