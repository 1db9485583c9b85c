package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pledgr/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newProtectedRouter(verifier TokenVerifier) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		claims, _ := ClaimsFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "email": claims.Email})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager(strings.Repeat("s", 32), "pledgr-api", time.Hour)
	signed, _, err := tokens.Issue(42, "ada@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r := newProtectedRouter(tokens)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + signed, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + signed, http.StatusOK},
		{"lower-case scheme", "bearer " + signed, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == http.StatusOK && !strings.Contains(rec.Body.String(), `"user_id":42`) {
				t.Fatalf("expected user id in body, got %s", rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"code":"authentication_error"`) {
				t.Fatalf("expected error code, got %s", rec.Body.String())
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "  abc-123  ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Body.String() != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected the caller's id to be reused, got %q / %q", rec.Body.String(), rec.Header().Get("X-Request-ID"))
	}

	for _, header := range []string{"", "id with spaces", "abc\nstatus=500", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", header)
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); len(got) != 36 || got == header {
			t.Fatalf("header %q: expected a generated uuid, got %q", header, got)
		}
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	r := gin.New()
	r.Use(RequestIDMiddleware(), AccessLog())
	r.GET("/campaigns/:id", func(c *gin.Context) {
		SetUserID(c, 42)
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/campaigns/7", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	line := buf.String()
	for _, want := range []string{"request_id=req-1 user_id=42 GET /campaigns/:id status=200 bytes=2", "user_id=0 GET unmatched status=404"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in access log:\n%s", want, line)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter("auth", 5, 15*time.Minute)
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("6th request in the window should be rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatalf("other clients have their own budget")
	}

	now = now.Add(3 * time.Minute)
	if !l.Allow("10.0.0.1") {
		t.Fatalf("one request should be refilled after window/requests")
	}

	now = now.Add(15 * time.Minute)
	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("budget should be full again after a window, request %d", i+1)
		}
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter("api", 0, 15*time.Minute)
	for i := 0; i < 1000; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter("auth", 1, time.Hour)
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3600" {
		t.Fatalf("expected Retry-After 3600, got %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), `"code":"rate_limited"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
