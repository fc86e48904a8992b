package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/pkg/queue"
)

type memWriter struct {
	mu   sync.Mutex
	fail bool
	rows []models.Attendance
}

func (m *memWriter) RecordAttendance(_ context.Context, a models.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("insert failed")
	}
	m.rows = append(m.rows, a)
	return nil
}

func (m *memWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memChat struct {
	msgs    []models.ChatMessage
	expired time.Duration
}

func (m *memChat) History(context.Context, string, int) ([]models.ChatMessage, error) {
	return m.msgs, nil
}

func (m *memChat) Expire(_ context.Context, _ string, ttl time.Duration) error {
	m.expired = ttl
	return nil
}

type memUploader struct {
	key  string
	body []byte
}

func (m *memUploader) Upload(_ context.Context, bucket, key, contentType string, body io.Reader, _ int64) (string, error) {
	m.key = key
	m.body, _ = io.ReadAll(body)
	return "https://" + bucket + "/" + key, nil
}

func (m *memUploader) TranscriptsBucket() string { return "transcripts-bucket" }

func newQueue(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.NewQueue(rdb, nil), mr
}

func TestRunRecordsAttendance(t *testing.T) {
	q, _ := newQueue(t)
	w := &memWriter{}
	p := NewProcessor(w, &memChat{}, nil, q, 100, 0, nil)
	p.backoff = 10 * time.Millisecond

	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, q.EnqueueAttendance(context.Background(), queue.AttendancePayload{
		ParticipantID: "p1", RoomID: "r1", JoinedAt: joined, LeftAt: joined.Add(time.Minute),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return w.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(queue.PollTimeout + 3*time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int64(60), w.rows[0].WatchSeconds())
}

func TestFailedJobIsRetried(t *testing.T) {
	q, mr := newQueue(t)
	w := &memWriter{fail: true}
	p := NewProcessor(w, &memChat{}, nil, q, 100, 0, nil)
	p.backoff = 10 * time.Millisecond

	require.NoError(t, q.EnqueueAttendance(context.Background(), queue.AttendancePayload{ParticipantID: "p1", RoomID: "r1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	assert.Eventually(t, func() bool {
		dlq, _ := mr.List(queue.QueueDLQ)
		return len(dlq) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTranscriptExport(t *testing.T) {
	chat := &memChat{msgs: []models.ChatMessage{
		{ID: "m1", RoomID: "r1", Seq: 1, SenderID: "p1", Body: "hello"},
		{ID: "m2", RoomID: "r1", Seq: 2, SenderID: "p2", Body: "hi"},
	}}
	up := &memUploader{}
	p := NewProcessor(&memWriter{}, chat, up, nil, 100, time.Hour, nil)

	raw, _ := json.Marshal(queue.TranscriptPayload{RoomID: "r1"})
	require.NoError(t, p.Process(context.Background(), &queue.Job{Type: queue.JobTypeTranscript, Payload: raw}))

	assert.Equal(t, "transcripts/r1.json", up.key)
	var tr Transcript
	require.NoError(t, json.Unmarshal(up.body, &tr))
	assert.Equal(t, "r1", tr.RoomID)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "hello", tr.Messages[0].Body)
	assert.Equal(t, time.Hour, chat.expired)
}

func TestTranscriptSkippedWithoutStorage(t *testing.T) {
	chat := &memChat{}
	p := NewProcessor(&memWriter{}, chat, nil, nil, 100, time.Hour, nil)
	raw, _ := json.Marshal(queue.TranscriptPayload{RoomID: "r1"})
	require.NoError(t, p.Process(context.Background(), &queue.Job{Type: queue.JobTypeTranscript, Payload: raw}))
	assert.Zero(t, chat.expired)
}

func TestUnknownJob(t *testing.T) {
	p := NewProcessor(&memWriter{}, &memChat{}, nil, nil, 100, 0, nil)
	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "nope"}))
}
