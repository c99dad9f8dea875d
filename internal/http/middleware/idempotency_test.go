package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("198.51.100.4", "5555")

	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("no key expected")
	}
	if IsReplay(c) {
		t.Fatalf("no replay expected")
	}
	if got := IdempotencyOwner(c); got != "ip:198.51.100.4" {
		t.Fatalf("anonymous owner = %q", got)
	}

	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "sub-1")
	if id, ok := ReplayOf(c); !ok || id != "sub-1" || !IsReplay(c) {
		t.Fatalf("ReplayOf = %q, %v", id, ok)
	}
	c.Set("userID", "u7")
	if got := IdempotencyOwner(c); got != "user:u7" {
		t.Fatalf("user owner = %q", got)
	}
}

type lookupCall struct {
	owner, scope, key string
}

func idemRouter(t *testing.T, opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(opts, lookup))
	r.POST("/submissions", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		id, _ := ReplayOf(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": id, "bypass": IsRateBypass(c)})
	})
	return r
}

func post(r http.Handler, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	r := idemRouter(t, IdempotencyOptions{Scope: "submissions"}, func(context.Context, string, string, string, time.Time) (string, bool, error) {
		called = true
		return "", false, nil
	})
	w := post(r, "")
	if w.Code != http.StatusOK || called {
		t.Fatalf("no header: code=%d lookupCalled=%v", w.Code, called)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	r := idemRouter(t, IdempotencyOptions{MaxLen: 8}, nil)
	for _, key := range []string{"has space", "toolong-key", "semi;colon"} {
		w := post(r, key)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("%q: want 400 bad_idempotency_key, got %d %s", key, w.Code, w.Body.String())
		}
	}

	// Custom pattern narrows the alphabet.
	r = idemRouter(t, IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, nil)
	if w := post(r, "abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("custom pattern not applied: %d", w.Code)
	}
	if w := post(r, "123"); w.Code != http.StatusOK {
		t.Fatalf("custom pattern rejected valid key: %d", w.Code)
	}
}

func TestIdempotencyValidator_ReplayAndMiss(t *testing.T) {
	var calls []lookupCall
	lookup := func(_ context.Context, owner, scope, key string, now time.Time) (string, bool, error) {
		if now.Location() != time.UTC {
			t.Errorf("lookup time must be UTC")
		}
		calls = append(calls, lookupCall{owner, scope, key})
		if key == "seen-key" {
			return "sub-42", true, nil
		}
		if key == "broken" {
			return "", false, errors.New("db down")
		}
		return "", false, nil
	}
	r := idemRouter(t, IdempotencyOptions{Scope: "submissions"}, lookup)

	w := post(r, "seen-key")
	if !strings.Contains(w.Body.String(), `"replay":"sub-42"`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("replay not flagged: %s", w.Body.String())
	}

	w = post(r, "fresh-key")
	if !strings.Contains(w.Body.String(), `"key":"fresh-key"`) || !strings.Contains(w.Body.String(), `"replay":""`) {
		t.Fatalf("miss mishandled: %s", w.Body.String())
	}

	// Lookup failures degrade to "not a replay".
	w = post(r, "broken")
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("lookup error should not block: %d %s", w.Code, w.Body.String())
	}

	if len(calls) != 3 || calls[0].scope != "submissions" || !strings.HasPrefix(calls[0].owner, "ip:") {
		t.Fatalf("unexpected lookup calls: %+v", calls)
	}
}
