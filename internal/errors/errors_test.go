package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *APIError
		want int
	}{
		{NotFound("user"), http.StatusNotFound},
		{InvalidCursor(), http.StatusBadRequest},
		{FeedUnavailable(), http.StatusServiceUnavailable},
		{ScoreUnavailable("u1"), http.StatusServiceUnavailable},
		{ValidationError("limit", "must be positive"), http.StatusBadRequest},
		{InternalError("boom"), http.StatusInternalServerError},
		{RateLimited("slow down"), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status)
		})
	}
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("MYSTERY").StatusCode())
}

func TestAPIErrorJSON(t *testing.T) {
	raw, err := json.Marshal(InvalidCursor().WithDetails("bad base64"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"INVALID_CURSOR","message":"pagination cursor is invalid or expired","field":"cursor","details":"bad base64"}`, string(raw))

	raw, err = json.Marshal(FeedUnavailable())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"retryable":true`)
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := stderrors.New("both sources failed")
	err := FeedUnavailable().WithCause(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "FEED_UNAVAILABLE: feed is temporarily unavailable, retry the request", err.Error())
}
