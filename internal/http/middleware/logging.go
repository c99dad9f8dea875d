// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the access log, panic recovery and request IDs:
//
//   - RequestID() reuses or mints the X-Request-ID correlation id.
//   - Logger() emits one structured zerolog line per request and stores a
//     request-scoped logger both in the Gin context and in the request's
//     context.Context, so services logging through log.Ctx(ctx) inherit the
//     request_id field.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//
// Order: RequestID, Logger, Recovery, then everything else.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-community-directory/internal/observability"
)

const (
	requestIDKey      = "requestID"
	requestIDHeader   = "X-Request-ID"
	maxQueryLogLength = 2048
	maxRequestIDLen   = 128
)

// RequestID attaches the incoming X-Request-ID or a fresh UUID. Oversized
// client ids are replaced rather than echoed.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes the access log without scrubbing. The level follows the
// outcome: error for 5xx or collected gin errors, warn for 4xx, info
// otherwise. Websocket upgrades are logged when the connection closes.
func Logger() gin.HandlerFunc {
	return accessLog(func(s string) string { return s }, nil)
}

// accessLog is the shared body of Logger and RedactingLogger. scrub is
// applied to the query string; headers, when set, adds a scrubbed header map.
func accessLog(scrub func(string) string, headers func(http.Header) map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		lc := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength)
		if tid := observability.TraceID(c.Request.Context()); tid != "" {
			lc = lc.Str("trace_id", tid)
		}
		l := lc.Logger()
		var hdrs map[string]string
		if headers != nil {
			hdrs = headers(c.Request.Header)
		}

		c.Set("logger", &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		// userID is only known after Authenticate has run.
		uid, _ := c.Get("userID")
		status := c.Writer.Status()
		ec := l.With().
			Str("user_id", asString(uid)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size())
		if hdrs != nil {
			ec = ec.Interface("headers", hdrs)
		}
		ev := ec.Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery logs panics with their stack and answers 500 when nothing has
// been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger() is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// routeOf is the registered route, or the raw path for unmatched requests.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
