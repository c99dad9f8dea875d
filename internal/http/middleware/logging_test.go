package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, _ := c.Get(requestIDKey); asString(v) == "" {
			t.Errorf("request id missing from context")
		}
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name, in string
		keep     bool
	}{
		{"generated", "", false},
		{"propagated", "abc-123", true},
		{"oversized replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.in != "" {
				req.Header.Set(strings.ToLower(requestIDHeader), tc.in)
			}
			r.ServeHTTP(w, req)
			got := w.Header().Get(requestIDHeader)
			if got == "" {
				t.Fatalf("no %s on response", requestIDHeader)
			}
			if (got == tc.in) != tc.keep {
				t.Fatalf("got %q for input %q (keep=%v)", got, tc.in, tc.keep)
			}
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/communities", func(c *gin.Context) { c.String(http.StatusOK, "[]") })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errBoom{})
		c.Status(http.StatusBadRequest)
	})

	for _, p := range []string{"/communities?q=go", "/missing", "/err"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want 3 access lines, got %d:\n%s", len(lines), buf.String())
	}
	want := []struct{ level, path string }{
		{"info", "/communities"},
		{"warn", "/missing"},
		{"error", "/err"},
	}
	for i, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line %d not JSON: %v", i, err)
		}
		if m["level"] != want[i].level || m["path"] != want[i].path || m["request_id"] == "" {
			t.Fatalf("line %d = %v, want %+v", i, m, want[i])
		}
	}
	if !strings.Contains(lines[0], `"query":"q=go"`) {
		t.Fatalf("query not logged: %s", lines[0])
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestLogger_UserIDAfterAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Authenticate(stubVerifier{}, AuthOptions{}))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-alice")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"user_id":"alice"`) {
		t.Fatalf("user_id not logged:\n%s", buf.String())
	}
}

func TestLogger_ContextCarriesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/svc", func(c *gin.Context) {
		// What a service sees when it logs through its context.
		log.Ctx(c.Request.Context()).Info().Msg("from service")
		LoggerFrom(c).Info().Msg("from handler")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/svc", nil)
	req.Header.Set(requestIDHeader, "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	for _, msg := range []string{"from service", "from handler"} {
		found := false
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.Contains(line, msg) && strings.Contains(line, `"request_id":"rid-ctx"`) {
				found = true
			}
		}
		if !found {
			t.Fatalf("%q not logged with request id:\n%s", msg, buf.String())
		}
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	LoggerFrom(c).Info().Msg("plain")
	if !strings.Contains(buf.String(), `"message":"plain"`) || strings.Contains(buf.String(), "request_id") {
		t.Fatalf("fallback logger output unexpected: %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != w.Header().Get(requestIDHeader) {
		t.Fatalf("unexpected body %v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("no JSON envelope expected after a write: %q", w.Body.String())
	}
	if strings.Count(buf.String(), "panic recovered") != 2 {
		t.Fatalf("want two panic logs:\n%s", buf.String())
	}
}

func TestHelpers_truncate(t *testing.T) {
	if truncate("hello", 10) != "hello" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate should be a no-op")
	}
	if got := truncate("abcdefgh", 5); got != "abcde…" {
		t.Fatalf("truncate = %q", got)
	}
	if asString(42) != "" {
		t.Fatalf("asString non-string")
	}
}

func TestLogger_TraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var traceID string
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx, span := tp.Tracer("test").Start(c.Request.Context(), "http")
		defer span.End()
		traceID = span.SpanContext().TraceID().String()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequestID(), Logger())
	r.GET("/t", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/t", nil))

	if traceID == "" || !strings.Contains(buf.String(), `"trace_id":"`+traceID+`"`) {
		t.Fatalf("trace id %q not logged:\n%s", traceID, buf.String())
	}
}
