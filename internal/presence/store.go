// Package presence is the cross-process record of who is connected to which room.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/live/internal/errs"
	"github.com/aura-webinar/live/internal/models"
)

const (
	roomsKey = "presence:rooms"

	fieldParticipant = "participantId"
	fieldConnRef     = "connectionRef"
	fieldName        = "displayName"
	fieldRole        = "role"
	fieldJoinedAt    = "joinedAt"
	fieldAudio       = "audio"
	fieldVideo       = "video"
	fieldScreen      = "screen"
	fieldHand        = "hand"
)

// Per-room keys share the {room} hash tag. Join and leave scripts also maintain the
// global roomsKey index, so the store targets a single Redis node, not Redis Cluster.
func membersKey(roomID string) string { return "presence:{" + roomID + "}:members" }
func aliveKey(roomID string) string   { return "presence:{" + roomID + "}:alive" }
func recordKey(roomID, participantID string) string {
	return "presence:{" + roomID + "}:p:" + participantID
}

// JoinResult describes an accepted join.
type JoinResult struct {
	// Replaced is set when a record for the same participant already existed.
	Replaced bool
	// Previous is the replaced record (only when Replaced).
	Previous *models.PresenceRecord
}

// Store is the Redis-backed RoomPresenceStore. Every mutation is a single Lua script.
type Store struct {
	rdb    *redis.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewStore creates a presence store on the given Redis client.
func NewStore(rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, now: time.Now, logger: logger}
}

// SetClock replaces the time source used for join and liveness timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func unavailable(op string, err error) error {
	return fmt.Errorf("presence %s: %w: %w", op, errs.ErrStoreUnavailable, err)
}

// Join registers rec in the room. A join that would exceed capacity fails with
// errs.ErrCapacityExceeded; a record for the same participant is replaced, not rejected.
// capacity <= 0 means unlimited.
func (s *Store) Join(ctx context.Context, roomID string, capacity int, rec models.PresenceRecord) (JoinResult, error) {
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = s.now()
	}
	args := []interface{}{rec.ParticipantID, capacity, s.now().UnixMilli(), roomID}
	args = append(args, encode(rec)...)
	keys := []string{membersKey(roomID), aliveKey(roomID), recordKey(roomID, rec.ParticipantID), roomsKey}

	res, err := joinScript.Run(ctx, s.rdb, keys, args...).Slice()
	if err != nil {
		return JoinResult{}, unavailable("join", err)
	}
	if len(res) == 0 {
		return JoinResult{}, unavailable("join", errors.New("empty script reply"))
	}
	code, _ := res[0].(int64)
	switch code {
	case -1:
		return JoinResult{}, errs.ErrCapacityExceeded
	case 1:
		out := JoinResult{Replaced: true}
		if prev, ok := decode(res[1:]); ok {
			out.Previous = &prev
		}
		return out, nil
	}
	return JoinResult{}, nil
}

// Leave removes the participant's record; it is a no-op when already absent.
func (s *Store) Leave(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error) {
	return s.leave(ctx, roomID, participantID, "")
}

// LeaveIfOwner removes the participant's record only if connRef still owns it, so a stale
// connection cannot remove the record created by a newer reconnect.
func (s *Store) LeaveIfOwner(ctx context.Context, roomID, participantID, connRef string) (*models.PresenceRecord, error) {
	if connRef == "" {
		return nil, errors.New("presence leave: empty connection ref")
	}
	return s.leave(ctx, roomID, participantID, connRef)
}

func (s *Store) leave(ctx context.Context, roomID, participantID, connRef string) (*models.PresenceRecord, error) {
	keys := []string{membersKey(roomID), aliveKey(roomID), recordKey(roomID, participantID), roomsKey}
	res, err := leaveScript.Run(ctx, s.rdb, keys, participantID, connRef, roomID).Slice()
	if err != nil {
		return nil, unavailable("leave", err)
	}
	rec, ok := decode(res)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Update merges patch into the participant's record. It reports false, without error,
// when the participant is no longer present or connRef does not own the record.
// An empty connRef applies the patch regardless of owner (host-driven effects).
func (s *Store) Update(ctx context.Context, roomID, participantID, connRef string, patch models.PresencePatch) (bool, error) {
	if patch.Empty() {
		return false, nil
	}
	args := []interface{}{connRef}
	args = append(args, encodePatch(patch)...)
	n, err := updateScript.Run(ctx, s.rdb, []string{recordKey(roomID, participantID)}, args...).Int()
	if err != nil {
		return false, unavailable("update", err)
	}
	return n == 1, nil
}

// Touch refreshes the participant's liveness signal. Absent participants are ignored.
func (s *Store) Touch(ctx context.Context, roomID, participantID string) error {
	err := s.rdb.ZAddXX(ctx, aliveKey(roomID), redis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: participantID,
	}).Err()
	if err != nil {
		return unavailable("touch", err)
	}
	return nil
}

// Get returns the participant's record, or nil when absent.
func (s *Store) Get(ctx context.Context, roomID, participantID string) (*models.PresenceRecord, error) {
	m, err := s.rdb.HGetAll(ctx, recordKey(roomID, participantID)).Result()
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	rec := fromMap(m)
	return &rec, nil
}

// List returns a snapshot of the room ordered by join time.
func (s *Store) List(ctx context.Context, roomID string) ([]models.PresenceRecord, error) {
	ids, err := s.rdb.ZRange(ctx, membersKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	if len(ids) == 0 {
		return []models.PresenceRecord{}, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recordKey(roomID, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("list", err)
	}
	out := make([]models.PresenceRecord, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			// removed between ZRANGE and HGETALL
			continue
		}
		out = append(out, fromMap(m))
	}
	return out, nil
}

// Count returns the number of active records in the room.
func (s *Store) Count(ctx context.Context, roomID string) (int, error) {
	n, err := s.rdb.ZCard(ctx, membersKey(roomID)).Result()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int(n), nil
}

// Rooms returns every room that currently has at least one record.
func (s *Store) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := s.rdb.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, unavailable("rooms", err)
	}
	return rooms, nil
}

// Reap removes records whose liveness signal is older than ttl and returns them.
func (s *Store) Reap(ctx context.Context, roomID string, ttl time.Duration) ([]models.PresenceRecord, error) {
	cutoff := s.now().Add(-ttl).UnixMilli()
	stale, err := s.rdb.ZRangeByScore(ctx, aliveKey(roomID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, unavailable("reap", err)
	}
	var reaped []models.PresenceRecord
	for _, pid := range stale {
		keys := []string{membersKey(roomID), aliveKey(roomID), recordKey(roomID, pid), roomsKey}
		res, err := reapScript.Run(ctx, s.rdb, keys, pid, cutoff, roomID).Slice()
		if err != nil {
			return reaped, unavailable("reap", err)
		}
		if rec, ok := decode(res); ok {
			reaped = append(reaped, rec)
		}
	}
	if len(stale) == 0 {
		// drop rooms whose members were cleaned without a script (expired keys, manual edits)
		if n, err := s.rdb.ZCard(ctx, membersKey(roomID)).Result(); err == nil && n == 0 {
			s.rdb.SRem(ctx, roomsKey, roomID)
		}
	}
	return reaped, nil
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func encode(r models.PresenceRecord) []interface{} {
	return []interface{}{
		fieldParticipant, r.ParticipantID,
		fieldConnRef, r.ConnectionRef,
		fieldName, r.DisplayName,
		fieldRole, string(r.Role),
		fieldJoinedAt, r.JoinedAt.UnixMilli(),
		fieldAudio, flag(r.AudioEnabled),
		fieldVideo, flag(r.VideoEnabled),
		fieldScreen, flag(r.ScreenSharing),
		fieldHand, flag(r.HandRaised),
	}
}

func encodePatch(p models.PresencePatch) []interface{} {
	var out []interface{}
	if p.AudioEnabled != nil {
		out = append(out, fieldAudio, flag(*p.AudioEnabled))
	}
	if p.VideoEnabled != nil {
		out = append(out, fieldVideo, flag(*p.VideoEnabled))
	}
	if p.ScreenSharing != nil {
		out = append(out, fieldScreen, flag(*p.ScreenSharing))
	}
	if p.HandRaised != nil {
		out = append(out, fieldHand, flag(*p.HandRaised))
	}
	return out
}

// decode turns a flat HGETALL script reply into a record.
func decode(flat []interface{}) (models.PresenceRecord, bool) {
	if len(flat) < 2 {
		return models.PresenceRecord{}, false
	}
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		m[k] = v
	}
	return fromMap(m), true
}

func fromMap(m map[string]string) models.PresenceRecord {
	ms, _ := strconv.ParseInt(m[fieldJoinedAt], 10, 64)
	return models.PresenceRecord{
		ParticipantID: m[fieldParticipant],
		ConnectionRef: m[fieldConnRef],
		DisplayName:   m[fieldName],
		Role:          models.Role(m[fieldRole]),
		JoinedAt:      time.UnixMilli(ms).UTC(),
		AudioEnabled:  m[fieldAudio] == "1",
		VideoEnabled:  m[fieldVideo] == "1",
		ScreenSharing: m[fieldScreen] == "1",
		HandRaised:    m[fieldHand] == "1",
	}
}
