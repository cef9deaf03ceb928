package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
)

func limited(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func call(h echo.HandlerFunc, key string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = key + ":1234"
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := call(h, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if _, err := call(h, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := call(h, "10.0.0.1")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0'")
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := call(h, "10.0.0.1"); err != nil {
		t.Fatalf("first client: %v", err)
	}
	if _, err := call(h, "10.0.0.1"); err == nil {
		t.Fatal("first client second request: expected rate limit error")
	}
	if _, err := call(h, "10.0.0.2"); err != nil {
		t.Fatalf("second client should have its own bucket: %v", err)
	}
}

func TestRateLimit_CustomKey(t *testing.T) {
	h := limited(RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		KeyFunc:           func(echo.Context) string { return "shared" },
	})

	if _, err := call(h, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if _, err := call(h, "10.0.0.2"); err == nil {
		t.Fatal("expected shared bucket to be exhausted")
	}
}

func TestRateLimit_ZeroBurstRejects(t *testing.T) {
	h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 0})
	if _, err := call(h, "10.0.0.1"); err == nil {
		t.Fatal("expected rejection with zero burst")
	}
}
