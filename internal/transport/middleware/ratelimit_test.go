package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func limitedHandler(rl *RateLimiter, perMinute int) http.Handler {
	return rl.Limit(perMinute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/dq/actions/merge-people", nil)
	req.RemoteAddr = addr
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	h := limitedHandler(rl, 10)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "1.2.3.4:1234").Code, "request %d should be allowed", i)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	h := limitedHandler(rl, 5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "1.2.3.4:1234").Code)
	}

	rec := hit(h, "1.2.3.4:9999")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "ports of one host share a bucket")
	assert.Equal(t, "13", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"error_code":"rate_limited"`)
}

func TestRateLimiter_DifferentIPsIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	h := limitedHandler(rl, 2)

	hit(h, "1.1.1.1:1234")
	hit(h, "1.1.1.1:1234")

	assert.Equal(t, http.StatusOK, hit(h, "2.2.2.2:5678").Code)
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	// 60 per minute = 1 per second
	h := limitedHandler(rl, 60)
	for i := 0; i < 60; i++ {
		hit(h, "3.3.3.3:1234")
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "3.3.3.3:1234").Code)

	now = now.Add(1100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, hit(h, "3.3.3.3:1234").Code)
}

func TestRateLimiter_ZeroDisables(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	defer rl.Stop()
	h := limitedHandler(rl, 0)

	for i := 0; i < 100; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "4.4.4.4:1").Code)
	}
	rl.Stop()
}
