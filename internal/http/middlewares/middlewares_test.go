package middlewares

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/securedata/internal/observability"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingCounter struct{}

func (failingCounter) IncrWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis: connection refused")
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		got, resetIn, err := c.IncrWindow(context.Background(), "k", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("got count %d, want %d", got, want)
		}
		if resetIn != time.Minute {
			t.Fatalf("got resetIn %v, want %v", resetIn, time.Minute)
		}
	}

	now = now.Add(time.Minute + time.Second)

	got, _, _ := c.IncrWindow(context.Background(), "k", time.Minute)
	if got != 1 {
		t.Fatalf("expected a fresh window, got count %d", got)
	}

	// keys are independent
	other, _, _ := c.IncrWindow(context.Background(), "other", time.Minute)
	if other != 1 {
		t.Fatalf("got count %d for a new key, want 1", other)
	}
}

func newLimitedEngine(counter WindowCounter, limit int) *gin.Engine {
	rl := NewRateLimiter(counter, "test", limit, time.Minute, discardLogger())

	r := gin.New()
	r.POST("/x", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	r := newLimitedEngine(NewMemoryCounter(), 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Fatalf("429 without Retry-After")
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("got codes %v, want %v", codes, want)
		}
	}
}

func TestRateLimiter_SeparatesClients(t *testing.T) {
	r := newLimitedEngine(NewMemoryCounter(), 1)

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: got status %d, want %d", addr, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	r := newLimitedEngine(failingCounter{}, 1)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{name: "json", method: http.MethodPost, contentType: "application/json", want: http.StatusOK},
		{name: "json_charset", method: http.MethodPost, contentType: "Application/JSON; charset=utf-8", want: http.StatusOK},
		{name: "form", method: http.MethodPost, contentType: "application/x-www-form-urlencoded", want: http.StatusUnsupportedMediaType},
		{name: "missing", method: http.MethodPost, want: http.StatusUnsupportedMediaType},
		{name: "get_ignored", method: http.MethodGet, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("got status %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequestID_PropagatesToRequestContext(t *testing.T) {
	var fromCtx, fromGin string

	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		fromCtx = observability.RequestIDFrom(c.Request.Context())
		fromGin = c.GetString(CtxRequestID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	header := w.Header().Get("X-Request-Id")
	if header == "" {
		t.Fatalf("expected a generated request id")
	}
	if fromCtx != header || fromGin != header {
		t.Fatalf("request id mismatch: header=%q ctx=%q gin=%q", header, fromCtx, fromGin)
	}
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("got allow-origin %q for an unknown origin", got)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"*"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("got allow-origin %q, want *", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("wildcard must not allow credentials")
	}
}

func TestMaxBodyBytes_RejectsDeclaredOversize(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(8))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"message":"far too long"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestSecurityHeaders_CSPByPath(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path string
		want string
	}{
		{path: "/users", want: apiCSP},
		{path: "/emails/", want: apiCSP},
		{path: "/healthz", want: apiCSP},
		{path: "/users-guide.html", want: frontendCSP},
		{path: "/emails.js", want: frontendCSP},
		{path: "/", want: frontendCSP},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("Content-Security-Policy"); got != tt.want {
			t.Fatalf("%s: got CSP %q, want %q", tt.path, got, tt.want)
		}
	}
}
