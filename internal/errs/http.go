package errs

import (
	"errors"
	"net/http"
)

// HTTPStatus maps err to the status code the REST handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrScreenShareDenied),
		errors.Is(err, ErrChatDisabled), errors.Is(err, ErrReactionsDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrAlreadyInRoom):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadPayload), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrNotInRoom), errors.Is(err, ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
