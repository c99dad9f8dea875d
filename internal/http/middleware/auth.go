// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file attaches the caller's identity to each request. Tokens come from
// the external identity provider as HS256 bearer JWTs; the middleware only
// verifies them; it never issues sessions.
//
// The identity is stored three ways so every consumer finds it:
//   - gin key "identity" (domain.Identity), read with Identity(c)
//   - gin key "userID" (string), read by Logger and KeyByUserOrIP
//   - the request context, read by services through auth.FromContext
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-directory/internal/auth"
	"github.com/tbourn/go-community-directory/internal/domain"
)

const ctxKeyIdentity = "identity"

// TokenVerifier turns a raw bearer token into an identity.
type TokenVerifier interface {
	Verify(raw string) (domain.Identity, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Required rejects requests without a token. When false, a missing
	// token yields the anonymous identity; a bad token is still rejected.
	Required bool
}

// Authenticate verifies the Authorization header with v. A nil verifier
// treats every caller as anonymous (auth disabled).
func Authenticate(v TokenVerifier, opt AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var id domain.Identity
		if v != nil {
			raw, err := auth.BearerToken(c.GetHeader("Authorization"))
			switch {
			case errors.Is(err, auth.ErrNoToken) && !opt.Required:
			case err != nil:
				abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or malformed bearer token")
				return
			default:
				id, err = v.Verify(raw)
				if err != nil {
					LoggerFrom(c).Debug().Err(err).Msg("token rejected")
					abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
			}
		}
		if id.Anonymous() && opt.Required {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// RequireUser rejects anonymous callers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Identity(c).Anonymous() {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers isAdmin does not accept. Anonymous callers get
// 401, authenticated non-admins 403.
func RequireAdmin(isAdmin func(context.Context, domain.Identity) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity(c)
		if id.Anonymous() {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if isAdmin == nil || !isAdmin(c.Request.Context(), id) {
			abortAuth(c, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		c.Next()
	}
}

// Identity returns the caller attached by Authenticate, or anonymous.
func Identity(c *gin.Context) domain.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}

func setIdentity(c *gin.Context, id domain.Identity) {
	c.Set(ctxKeyIdentity, id)
	if !id.Anonymous() {
		c.Set("userID", id.UserID)
	}
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="community-directory"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
