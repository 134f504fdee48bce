package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPLimiterBurst(t *testing.T) {
	t.Parallel()

	l := newIPLimiter(1.0, 3)
	for i := range 3 {
		assert.True(t, l.allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, l.allow("10.0.0.1"), "burst exhausted")

	// Other IPs are unaffected.
	assert.True(t, l.allow("10.0.0.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitMiddleware(newIPLimiter(1.0, 1), false, testLogger())(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	// Proxy headers are ignored unless trusted.
	assert.Equal(t, "192.0.2.10", clientIP(req, false))
	assert.Equal(t, "203.0.113.7", clientIP(req, true))

	// X-Forwarded-For is the fallback, first hop only.
	req.Header.Del("X-Real-IP")
	assert.Equal(t, "198.51.100.4", clientIP(req, true))

	// Garbage header values never become limiter keys.
	req.Header.Set("X-Real-IP", "not-an-ip")
	req.Header.Set("X-Forwarded-For", "also-garbage")
	assert.Equal(t, "192.0.2.10", clientIP(req, true))
}
