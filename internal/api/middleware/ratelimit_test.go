package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limits := []RateLimit{
		{"POST /api/messages", "send_message", 2, time.Minute, ipKey},
	}
	return NewRateLimiter(client, zerolog.Nop(), cfg, limits), mr
}

func doRequest(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		rec := doRequest(h, http.MethodPost, "/api/messages", "10.1.1.1")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(h, http.MethodPost, "/api/messages", "10.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other clients and unlimited routes are unaffected
	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/api/messages", "10.1.1.2").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/health", "10.1.1.1").Code)
}

func TestRateLimiter_Whitelist(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{Whitelist: []string{"192.168.0.0/16", "10.9.9.9", "not-a-cidr/99"}})
	h := rl.Middleware(okHandler)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/api/messages", "192.168.4.20").Code)
		assert.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/api/messages", "10.9.9.9").Code)
	}
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rl, mr := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)
	mr.Close()

	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/api/messages", "10.1.1.1").Code)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", RealIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", RealIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", RealIP(req))
}
