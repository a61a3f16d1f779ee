package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("ip", 2, time.Minute))
	assert.True(t, rl.Allow("ip", 2, time.Minute))
	assert.False(t, rl.Allow("ip", 2, time.Minute))
	assert.True(t, rl.Allow("other", 2, time.Minute))

	limit, remaining, reset := rl.GetRateLimitHeaders("ip", 2, time.Minute)
	assert.Equal(t, 2, limit)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, now.Add(time.Minute).Unix(), reset)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.cleanup())
	assert.True(t, rl.Allow("ip", 2, time.Minute))
}

func TestStartIsRateLimitedPerIP(t *testing.T) {
	s := newTestServer(t, withStartLimit(1))
	id := s.createSession(t, nil).ID

	w, _ := s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	s.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	w, env := s.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrorRateLimited, env.Error.Code)
	assert.False(t, env.Success)

	// 其它路由不受影响
	w, _ = s.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "trace-me")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "trace-me", w.Header().Get(requestIDHeader))
	assert.Contains(t, w.Body.String(), `"requestId":"trace-me"`)

	_, env := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Len(t, env.RequestID, 36)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createSession(t, nil)

	w, _ := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jade_game_sessions_active 1")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfigOrigins(t *testing.T) {
	cfg := corsConfig([]string{"http://a.test"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"http://a.test"}, cfg.AllowOrigins)

	cfg = corsConfig([]string{"*"})
	assert.True(t, cfg.AllowAllOrigins)
	assert.Empty(t, cfg.AllowOrigins)
	require.NoError(t, cfg.Validate())
}
