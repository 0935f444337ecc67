package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, slog.Default())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d within limit", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Other clients are unaffected.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_RefillsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond, slog.Default())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rl := NewRateLimiter(2, time.Minute, logger)
	defer rl.Stop()

	calls := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/resync", nil)
		req.RemoteAddr = "10.0.0.1:54321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if i < 2 {
			assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode)
			assert.Contains(t, w.Body.String(), "rate limit exceeded")
		}
	}

	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "Rate limit exceeded")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "remote addr only",
			remote: "10.0.0.1:54321",
			want:   "10.0.0.1:54321",
		},
		{
			name:    "x-forwarded-for single",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remote:  "10.0.0.1:54321",
			want:    "203.0.113.7",
		},
		{
			name:    "x-forwarded-for chain takes first",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7,10.0.0.2"},
			remote:  "10.0.0.1:54321",
			want:    "203.0.113.7",
		},
		{
			name:    "x-real-ip",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			remote:  "10.0.0.1:54321",
			want:    "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestRateLimiter_DistinctKeysGetDistinctBuckets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, slog.Default())
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("10.0.0.%d", i)
		assert.True(t, rl.Allow(key))
		assert.False(t, rl.Allow(key))
	}
}
