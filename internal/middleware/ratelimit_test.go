package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/consultrelay/consult-relay-go/internal/model"
)

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests under limit", func(t *testing.T) {
		limiter := NewMemoryRateLimiter()

		for i := 0; i < 5; i++ {
			allowed, remaining, _ := limiter.Check(ctx, "user-1", 10)
			assert.True(t, allowed)
			assert.Equal(t, 10-i-1, remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		limiter := NewMemoryRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "user-2", 5)
		}

		allowed, remaining, _ := limiter.Check(ctx, "user-2", 5)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks keys separately", func(t *testing.T) {
		limiter := NewMemoryRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "user-a", 5)
		}

		allowed, _, _ := limiter.Check(ctx, "user-b", 5)
		assert.True(t, allowed)
	})

	t.Run("returns reset time", func(t *testing.T) {
		limiter := NewMemoryRateLimiter()

		_, _, resetAt := limiter.Check(ctx, "user-3", 10)
		assert.Greater(t, resetAt, int64(0))
	})
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	limiter := NewRedisRateLimiter(client)
	allowed, remaining, resetAt := limiter.Check(context.Background(), "user-1", 10)

	assert.True(t, allowed)
	assert.Equal(t, 9, remaining)
	assert.Greater(t, resetAt, int64(0))
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows request without user", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewMemoryRateLimiter(), 1).Handler(ok)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("limits per user", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewMemoryRateLimiter(), 2).Handler(ok)
		user := &model.User{ID: "doc-1", Role: model.UserRoleDoctor}

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req = req.WithContext(WithUser(req.Context(), user))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)

			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		}

		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("sets retry header when blocked", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewMemoryRateLimiter(), 1).Handler(ok)
		user := &model.User{ID: "pat-1", Role: model.UserRolePatient}

		var rec *httptest.ResponseRecorder
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req = req.WithContext(WithUser(req.Context(), user))
			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
		}

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})
}

func TestIPRateLimitMiddleware(t *testing.T) {
	handler := NewIPRateLimitMiddleware(NewMemoryRateLimiter(), 1, "probe").Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/diagnostics/ping", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}
