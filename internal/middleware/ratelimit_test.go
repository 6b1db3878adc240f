package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func newLimitedRouter(limiter *RateLimiter) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/clients/{client}/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Use(limiter.Handler)
	return router
}

func get(handler http.Handler, path string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterKeysByClient(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	handler := newLimitedRouter(limiter)

	if code := get(handler, "/clients/a/ping"); code != http.StatusOK {
		t.Fatalf("first request status %d", code)
	}
	if code := get(handler, "/clients/a/ping"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for exhausted client, got %d", code)
	}
	if code := get(handler, "/clients/b/ping"); code != http.StatusOK {
		t.Fatalf("other client must have its own bucket, got %d", code)
	}
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(1, 1, nil)
	handler := newLimitedRouter(limiter)

	get(handler, "/clients/a/ping")
	if code := get(handler, "/clients/a/ping"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	limiter.Reset()
	if code := get(handler, "/clients/a/ping"); code != http.StatusOK {
		t.Fatalf("expected fresh bucket after reset, got %d", code)
	}
}
