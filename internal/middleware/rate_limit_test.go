package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 2)
	defer rl.Stop()

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)

	ok, retry := rl.Allow("a")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Second)

	// other clients have their own bucket
	ok, _ = rl.Allow("b")
	assert.True(t, ok)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, time.Minute, 1)
	defer rl.Stop()

	rl.Allow("idle")
	rl.cleanup(time.Now().Add(3 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.clients)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 1)
	defer rl.Stop()

	router := setupTestRouter()
	router.POST("/bookings", rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/bookings", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send("203.0.113.10")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := send("203.0.113.10")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	other := send("203.0.113.11")
	assert.Equal(t, http.StatusCreated, other.Code)
}

func TestRateLimiterMiddlewareKeysByUser(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 1)
	defer rl.Stop()

	router := setupTestRouter()
	router.POST("/bookings", func(c *gin.Context) {
		c.Set(UserContextKey, UserContext{UserID: c.GetHeader("X-Test-User"), Role: models.RoleCustomer})
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest("POST", "/bookings", nil)
		req.Header.Set("X-Test-User", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("u1"))
	assert.Equal(t, http.StatusTooManyRequests, send("u1"))
	// same IP, different user
	assert.Equal(t, http.StatusCreated, send("u2"))
}
