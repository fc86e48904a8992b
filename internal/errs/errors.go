// Package errs defines the error taxonomy shared by the room services and its wire codes.
package errs

import "errors"

var (
	ErrAuth              = errors.New("authentication failed")
	ErrCapacityExceeded  = errors.New("room is full")
	ErrChatDisabled      = errors.New("chat is disabled in this room")
	ErrReactionsDisabled = errors.New("reactions are disabled in this room")
	ErrScreenShareDenied = errors.New("screen sharing is not allowed for this participant")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLong    = errors.New("message is too long")
	ErrTargetNotFound    = errors.New("target participant not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid webinar state")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrRoomNotFound      = errors.New("room not found")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrBadPayload        = errors.New("malformed payload")
	ErrUnknownEvent      = errors.New("unknown event")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAuth, "auth_error"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrChatDisabled, "chat_disabled"},
	{ErrReactionsDisabled, "reactions_disabled"},
	{ErrScreenShareDenied, "screen_share_denied"},
	{ErrRateLimited, "rate_limited"},
	{ErrEmptyMessage, "empty_message"},
	{ErrMessageTooLong, "message_too_long"},
	{ErrTargetNotFound, "target_not_found"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidState, "invalid_state"},
	{ErrStoreUnavailable, "store_unavailable"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrNotInRoom, "not_in_room"},
	{ErrAlreadyInRoom, "already_in_room"},
	{ErrBadPayload, "bad_payload"},
	{ErrUnknownEvent, "unknown_event"},
}

// Code maps err to its stable wire code; unrecognised errors are "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
