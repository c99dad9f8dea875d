// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them instead of
// parsing messages. Generic codes mirror HTTP status semantics; the rest name
// a failure class of the submission lifecycle (see services.ErrorKind).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_transition",
//	  "message": "That action is not allowed for the submission's current status."
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeValidation        = "validation_failed"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeStoreUnavailable  = "store_unavailable"
	ErrCodeUploadTooLarge    = "upload_too_large"
	ErrCodeUploadType        = "unsupported_media_type"
	ErrCodeUploadDisabled    = "uploads_disabled"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)
