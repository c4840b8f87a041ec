package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRejectsAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(0.001, 2)
	r := gin.New()
	r.Use(l.Middleware())
	r.POST("/process-frame", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/process-frame", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process-frame", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvictDropsIdleClients(t *testing.T) {
	l := New(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("a")
	l.Allow("b")

	now = now.Add(staleAfter + time.Second)
	l.Allow("b")

	assert.Equal(t, 1, l.evict())
	assert.Len(t, l.clients, 1)
}
