// Package services – AdminActions
//
// AdminActions is the boundary every admin surface (HTTP, CLI) calls through.
// Each action checks that the caller is an admin, runs the lifecycle engine,
// and folds the outcome into an ActionResult. Nothing panics or returns a Go
// error across this boundary: failures come back as ok=false with a kind.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-community-directory/internal/domain"
)

// Authorizer answers capability questions about a caller. The identity
// provider is external; implementations only interpret its assertions.
type Authorizer interface {
	IsAdmin(ctx context.Context, caller domain.Identity) bool
	IsOwner(ctx context.Context, caller domain.Identity, submissionID string) (bool, error)
}

// ActionResult is the discriminated outcome of an admin action. When OK is
// true Submission is set; otherwise Error names the failure class.
type ActionResult struct {
	OK         bool               `json:"ok"`
	Submission *domain.Submission `json:"submission,omitempty"`
	Error      ErrorKind          `json:"error,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// Err rebuilds a matchable error from a failed result, or nil on success.
func (r ActionResult) Err() error {
	if r.OK {
		return nil
	}
	switch r.Error {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindTransientStore:
		return ErrTransientStore
	case KindAuthorization:
		return ErrUnauthorized
	}
	return fmt.Errorf("%s", r.Message)
}

// AdminActions exposes approve, reject and delist to admin surfaces.
type AdminActions struct {
	Engine *LifecycleEngine
	Auth   Authorizer
}

// NewAdminActions wires the admin boundary.
func NewAdminActions(e *LifecycleEngine, a Authorizer) *AdminActions {
	return &AdminActions{Engine: e, Auth: a}
}

// Approve approves submission id on behalf of caller.
func (a *AdminActions) Approve(ctx context.Context, caller domain.Identity, id, notes string) ActionResult {
	return a.Do(ctx, caller, domain.ActionApprove, id, notes)
}

// Reject rejects submission id on behalf of caller.
func (a *AdminActions) Reject(ctx context.Context, caller domain.Identity, id, notes string) ActionResult {
	return a.Do(ctx, caller, domain.ActionReject, id, notes)
}

// Delist delists submission id on behalf of caller.
func (a *AdminActions) Delist(ctx context.Context, caller domain.Identity, id, notes string) ActionResult {
	return a.Do(ctx, caller, domain.ActionDelist, id, notes)
}

// Do runs action and never panics.
func (a *AdminActions) Do(ctx context.Context, caller domain.Identity, action domain.Action, id, notes string) (res ActionResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Interface("panic", p).
				Str("action", string(action)).
				Str("submission_id", id).
				Msg("admin action panicked")
			res = failed(KindInternal)
		}
	}()

	if a.Auth == nil || !a.Auth.IsAdmin(ctx, caller) {
		return failed(KindAuthorization)
	}
	sub, err := a.Engine.Apply(ctx, action, id, caller.UserID, notes)
	if err != nil {
		kind := KindOf(err)
		if kind == KindInternal {
			log.Error().Err(err).
				Str("action", string(action)).
				Str("submission_id", id).
				Msg("admin action failed")
		}
		return failed(kind)
	}
	return ActionResult{OK: true, Submission: sub}
}

func failed(kind ErrorKind) ActionResult {
	return ActionResult{OK: false, Error: kind, Message: kind.Message()}
}
