package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rule RateLimitRule, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/workflow/run", RateLimit(rule, limiter), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})
	r.GET("/workflow/active", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestRateLimitSubmissions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	r := limitedRouter(RateLimitRule{Rate: 1, Burst: 2}, limiter)

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/workflow/run", nil))
		if resp.Code != http.StatusAccepted {
			t.Fatalf("request %d expected 202, got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/workflow/run", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp.Header().Get("Retry-After"))
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("unexpected code %q", payload.Error.Code)
	}

	// Queries are never limited.
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/workflow/active", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	now = now.Add(time.Second)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/workflow/run", nil))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected refill after one second, got %d", resp.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := limitedRouter(RateLimitRule{}, nil)
	for i := 0; i < 20; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/workflow/run", nil))
		if resp.Code != http.StatusAccepted {
			t.Fatalf("request %d expected 202, got %d", i+1, resp.Code)
		}
	}
}
