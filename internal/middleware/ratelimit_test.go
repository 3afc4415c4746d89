package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func setupRateLimitRouter(cfg RateLimitConfig) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doFrom(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 0.001, Burst: 2, IdleTTL: time.Minute})

	for i := 0; i < 2; i++ {
		if w := doFrom(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := doFrom(r, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 0.001, Burst: 1})

	if w := doFrom(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", w.Code)
	}
	if w := doFrom(r, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client: expected 429, got %d", w.Code)
	}
	if w := doFrom(r, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("second client: expected its own bucket, got %d", w.Code)
	}
}

func TestRateLimit_RejectedRequestsDoNotConsumeTokens(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 20, Burst: 1})

	if w := doFrom(r, "10.0.0.3"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for i := 0; i < 5; i++ {
		doFrom(r, "10.0.0.3")
	}
	time.Sleep(100 * time.Millisecond)
	if w := doFrom(r, "10.0.0.3"); w.Code != http.StatusOK {
		t.Fatalf("expected the bucket to refill after rejections, got %d", w.Code)
	}
}
