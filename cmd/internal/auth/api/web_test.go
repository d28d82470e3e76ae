package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetRefreshCookie(t *testing.T) {
	h := &Handler{cfg: Config{CookieSecure: true}}

	rr := httptest.NewRecorder()
	h.setRefreshCookie(rr, "refresh-token-123", 7*24*time.Hour)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != RefreshCookieName || c.Path != RefreshCookiePath {
		t.Fatalf("unexpected cookie scope: %s %s", c.Name, c.Path)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie flags not hardened: %+v", c)
	}
	if c.MaxAge != 7*24*3600 {
		t.Fatalf("MaxAge = %d", c.MaxAge)
	}
}

func TestRefreshTokenFromCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	if _, ok := refreshTokenFromCookie(req); ok {
		t.Fatalf("expected no token without cookie")
	}

	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: " tok-123 "})
	token, ok := refreshTokenFromCookie(req)
	if !ok || token != "tok-123" {
		t.Fatalf("unexpected cookie token: %q %v", token, ok)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "bearer abc")
	if got := bearerToken(req); got != "abc" {
		t.Fatalf("bearerToken = %q", got)
	}
	req.Header.Set("Authorization", "Basic abc")
	if got := bearerToken(req); got != "" {
		t.Fatalf("bearerToken = %q, want empty", got)
	}
}

func TestClientIP_TrustProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(req, false).String(); got != "10.0.0.1" {
		t.Fatalf("untrusted ClientIP = %s", got)
	}
	if got := ClientIP(req, true).String(); got != "203.0.113.9" {
		t.Fatalf("trusted ClientIP = %s", got)
	}
}
