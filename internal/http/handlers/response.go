// Package handlers holds the gin handlers of the community directory API.
//
// Every failure leaves through fail() as an ErrorResponse carrying a stable
// code; service errors go through failErr, which maps the error kind to an
// HTTP status. Admin lifecycle actions are the exception: they answer with
// the ActionResult itself so every surface sees the same discriminated shape.
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_transition",
//	  "message": "That action is not allowed for the submission's current status."
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/services"
)

// ErrorResponse is the error envelope of every endpoint except admin actions.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"submission not found"`
}

// fail aborts with an ErrorResponse. Store outages and internal errors are
// logged with the request logger; client errors are not.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute and NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error to its HTTP status and stable code. The message
// is the kind's user-facing text, except for validation failures whose detail
// names the offending fields.
func failErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, code := statusOf(kind)
	msg := kind.Message()
	if kind == services.KindValidation {
		msg = err.Error()
	}
	if kind == services.KindInternal {
		_ = c.Error(err)
	}
	fail(c, status, code, msg)
}

// statusOf returns the HTTP status and error code for an error kind.
func statusOf(kind services.ErrorKind) (int, string) {
	switch kind {
	case services.KindValidation:
		return http.StatusUnprocessableEntity, ErrCodeValidation
	case services.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case services.KindInvalidTransition:
		return http.StatusConflict, ErrCodeInvalidTransition
	case services.KindTransientStore:
		return http.StatusServiceUnavailable, ErrCodeStoreUnavailable
	case services.KindAuthorization:
		return http.StatusForbidden, ErrCodeForbidden
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
