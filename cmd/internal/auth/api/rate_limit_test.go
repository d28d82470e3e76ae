package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 2, time.Minute, false)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	ok, retry := l.Allow("1.2.3.4")
	if ok {
		t.Fatalf("third request should be limited")
	}
	if retry <= 0 || retry > time.Second {
		t.Fatalf("retry = %v", retry)
	}
	if ok, _ := l.Allow("5.6.7.8"); !ok {
		t.Fatalf("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Fatalf("bucket should refill after 1s")
	}
}

func TestIPLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewIPLimiter(1, 1, time.Minute, false)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(2 * time.Minute)
	l.Allow("b")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["a"]; ok {
		t.Fatalf("idle bucket was not swept")
	}
}

func TestIPLimiter_Middleware(t *testing.T) {
	l := NewIPLimiter(0.001, 1, time.Minute, false)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}
