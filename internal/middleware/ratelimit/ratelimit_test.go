package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{Limit: limit, Window: time.Minute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowFixedWindow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("user:1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	*now = now.Add(20 * time.Second)
	ok, retry := rl.Allow("user:1")
	if ok {
		t.Fatal("fourth request in the window should be limited")
	}
	if retry != 40*time.Second {
		t.Errorf("retry after = %v, want 40s", retry)
	}

	if ok, _ := rl.Allow("user:2"); !ok {
		t.Error("other keys have their own window")
	}

	*now = now.Add(40 * time.Second)
	if ok, _ := rl.Allow("user:1"); !ok {
		t.Error("a new window should reset the count")
	}

	if got := rl.GetMetrics().Limited; got != 1 {
		t.Errorf("limited = %d, want 1", got)
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("a")
	*now = now.Add(30 * time.Second)
	rl.Allow("b")

	*now = now.Add(45 * time.Second)
	rl.cleanupStaleEntries()

	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("active clients = %d, want 1", got)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)

	var limitedCalls int
	h := rl.Middleware(
		func(r *http.Request) string { return r.Header.Get("X-Key") },
		func(w http.ResponseWriter, r *http.Request) {
			limitedCalls++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"first request passes", "ip:1", http.StatusNoContent},
		{"second request is limited", "ip:1", http.StatusTooManyRequests},
		{"other key passes", "ip:2", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Key", tt.key)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
				t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
			}
		})
	}
	if limitedCalls != 1 {
		t.Errorf("onLimit called %d times, want 1", limitedCalls)
	}
}
