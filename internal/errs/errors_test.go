package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "capacity_exceeded", Code(ErrCapacityExceeded))
	assert.Equal(t, "rate_limited", Code(fmt.Errorf("post: %w", ErrRateLimited)))
	assert.Equal(t, "store_unavailable", Code(fmt.Errorf("join: %w: %w", ErrStoreUnavailable, errors.New("dial tcp"))))
	assert.Equal(t, "internal", Code(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get: %w", ErrRoomNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrInvalidState))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrForbidden))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(fmt.Errorf("x: %w: %w", ErrStoreUnavailable, errors.New("eof"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
