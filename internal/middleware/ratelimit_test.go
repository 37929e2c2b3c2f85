package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitCapsPerClient(t *testing.T) {
	handler := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/stories", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("203.0.113.1:1000"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := do("203.0.113.1:1000"); code != http.StatusOK {
		t.Fatalf("second request = %d", code)
	}
	if code := do("203.0.113.1:1000"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	// A different client gets its own window.
	if code := do("198.51.100.7:1000"); code != http.StatusOK {
		t.Fatalf("other client = %d, want 200", code)
	}
}
