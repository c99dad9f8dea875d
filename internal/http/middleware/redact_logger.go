// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access log the router installs. It logs the same
// fields as Logger plus the request headers, after scrubbing:
//   - sensitive headers (Authorization, Cookie, Set-Cookie, Idempotency-Key
//     and any configured extras) are replaced wholesale
//   - bearer tokens and JWTs, emails, UUIDs and phone numbers are masked in
//     query strings and remaining header values
//
// Bodies are never logged. Submissions carry founder names and bios; those
// only ever travel in bodies.
package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders lists extra header names (case-insensitive) to replace.
	MaskHeaders []string
}

// Redactor scrubs identifiers out of free-form strings.
type Redactor struct {
	masked map[string]struct{}
}

// UUIDs are matched before phone numbers: the loose phone pattern would
// otherwise eat the digit runs of a UUID.
var (
	jwtRE   = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// NewRedactor returns a Redactor masking the built-in sensitive headers plus
// extra.
func NewRedactor(extra ...string) *Redactor {
	r := &Redactor{masked: map[string]struct{}{
		"authorization":   {},
		"cookie":          {},
		"set-cookie":      {},
		"idempotency-key": {},
	}}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

// String masks tokens and personal identifiers in s.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	s = jwtRE.ReplaceAllString(s, "[REDACTED:token]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Headers returns h flattened with masked headers replaced and the rest
// scrubbed.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.String(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger returns the scrubbing access log.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	r := NewRedactor(opts.MaskHeaders...)
	return accessLog(r.String, r.Headers)
}
