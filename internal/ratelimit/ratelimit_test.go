package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLimiter(client, "rl:booking", limit, window), s
}

func TestRedisLimiterWindow(t *testing.T) {
	l, s := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	// Other users have their own bucket.
	ok, _, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok)

	s.FastForward(time.Minute + time.Second)

	ok, _, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, 1, time.Minute)

	newRouter := func(lim Limiter) *gin.Engine {
		r := gin.New()
		r.POST("/reservations", Middleware(lim, func(c *gin.Context) string {
			return c.GetHeader("X-User")
		}), func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})
		return r
	}

	do := func(r *gin.Engine, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reservations", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("limits per key", func(t *testing.T) {
		r := newRouter(l)
		assert.Equal(t, http.StatusCreated, do(r, "alice").Code)

		w := do(r, "alice")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		r := newRouter(l)
		assert.Equal(t, http.StatusCreated, do(r, "").Code)
		assert.Equal(t, http.StatusCreated, do(r, "").Code)
	})

	t.Run("fails open", func(t *testing.T) {
		r := newRouter(failingLimiter{})
		assert.Equal(t, http.StatusCreated, do(r, "bob").Code)
	})
}
