// Package services holds the submission lifecycle: the repository over the
// store, the lifecycle engine that moves submissions between states, and the
// admin action boundary that turns errors into discriminated results.
//
// This file centralizes the service-level error taxonomy. Every error a
// service returns is either one of the sentinels below or wraps one, so
// callers can match with errors.Is / errors.As and handlers can map them to
// HTTP statuses without string inspection.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/go-community-directory/internal/domain"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when the submission id is unknown to the store.
	ErrNotFound = errors.New("submission not found")

	// ErrInvalidTransition matches any *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransientStore marks store failures the caller may retry: timeouts,
	// cancelled contexts, and driver errors. Services never retry on their own.
	ErrTransientStore = errors.New("store unavailable")

	// ErrUnauthorized is returned when the caller lacks the capability for an
	// operation (not an admin, not the owner).
	ErrUnauthorized = errors.New("not authorized")
)

// ValidationError reports which submission fields were rejected and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidTransitionError carries the rejected (from, to) pair.
type InvalidTransitionError struct {
	ID   string
	From domain.Status
	To   domain.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for submission %s", e.From, e.To, e.ID)
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// transient wraps cause so that it matches ErrTransientStore while keeping the
// driver error available to errors.As.
func transient(op string, cause error) error {
	return &transientError{op: op, cause: cause}
}

type transientError struct {
	op    string
	cause error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransientStore, e.op, e.cause)
}

func (e *transientError) Is(target error) bool { return target == ErrTransientStore }

func (e *transientError) Unwrap() error { return e.cause }

// ErrorKind is the stable, serializable name of an error class. It is what
// crosses the admin action boundary and the CLI.
type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindNotFound          ErrorKind = "NotFound"
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindTransientStore    ErrorKind = "TransientStoreError"
	KindAuthorization     ErrorKind = "AuthorizationError"
	KindInternal          ErrorKind = "Internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrTransientStore):
		return KindTransientStore
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	}
	return KindInternal
}

// Message is the user-facing text for a kind. Admin surfaces show it as-is.
func (k ErrorKind) Message() string {
	switch k {
	case KindValidation:
		return "The submission is missing required fields or has invalid values."
	case KindNotFound:
		return "That submission no longer exists."
	case KindInvalidTransition:
		return "That action is not allowed for the submission's current status."
	case KindTransientStore:
		return "Network issue talking to the store, try again."
	case KindAuthorization:
		return "You are not authorized to do that."
	case "":
		return ""
	}
	return "Unexpected error."
}
