// Package services – LifecycleEngine
//
// LifecycleEngine is the single entry point for admin lifecycle actions. It
// maps approve / reject / delist onto a repository status update and, once the
// update succeeded, announces the change on the propagation bus so in-process
// readers refresh without waiting for their next poll.
//
// The engine trusts its caller: authorization is checked by AdminActions (or
// whatever surface calls in), not here.
package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-community-directory/internal/domain"
)

var (
	// lifecycleActions counts admin actions by action and outcome kind
	// ("ok" on success, otherwise the ErrorKind).
	lifecycleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_actions_total",
			Help: "Lifecycle actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// lifecycleLat records how long a lifecycle action took end to end.
	lifecycleLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecycle_action_duration_seconds",
			Help:    "Duration of lifecycle actions in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(lifecycleActions, lifecycleLat)
}

// StatusUpdater is the slice of SubmissionRepository the engine drives.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, next domain.Status, reviewer, notes string) (*domain.Submission, error)
}

// Publisher receives change events. *bus.Bus satisfies it.
type Publisher interface {
	Publish(ev domain.Event)
}

// LifecycleEngine executes transitions and publishes their events.
type LifecycleEngine struct {
	Repo StatusUpdater
	Bus  Publisher
}

// NewLifecycleEngine wires an engine. A nil bus disables publishing.
func NewLifecycleEngine(r StatusUpdater, b Publisher) *LifecycleEngine {
	return &LifecycleEngine{Repo: r, Bus: b}
}

// Approve moves a pending submission to approved. Approving an approved
// submission succeeds and returns it unchanged.
func (e *LifecycleEngine) Approve(ctx context.Context, id, reviewer, notes string) (*domain.Submission, error) {
	return e.Apply(ctx, domain.ActionApprove, id, reviewer, notes)
}

// Reject moves a pending submission to rejected.
func (e *LifecycleEngine) Reject(ctx context.Context, id, reviewer, notes string) (*domain.Submission, error) {
	return e.Apply(ctx, domain.ActionReject, id, reviewer, notes)
}

// Delist takes an approved submission off the directory.
func (e *LifecycleEngine) Delist(ctx context.Context, id, reviewer, notes string) (*domain.Submission, error) {
	return e.Apply(ctx, domain.ActionDelist, id, reviewer, notes)
}

// Apply runs action against submission id. Errors are returned as-is from
// the repository and nothing is retried.
func (e *LifecycleEngine) Apply(ctx context.Context, action domain.Action, id, reviewer, notes string) (*domain.Submission, error) {
	ctx, span := otel.Tracer("services/LifecycleEngine").Start(ctx, string(action),
		trace.WithAttributes(
			attribute.String("submission.id", id),
			attribute.String("reviewer", reviewer),
		),
	)
	defer span.End()
	start := time.Now()
	defer func() { lifecycleLat.WithLabelValues(string(action)).Observe(time.Since(start).Seconds()) }()

	target, ok := action.Target()
	if !ok {
		err := &ValidationError{Fields: map[string]string{"action": "unknown action " + string(action)}}
		lifecycleActions.WithLabelValues(string(action), string(KindValidation)).Inc()
		return nil, err
	}

	sub, err := e.Repo.UpdateStatus(ctx, id, target, reviewer, notes)
	if err != nil {
		kind := KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		lifecycleActions.WithLabelValues(string(action), string(kind)).Inc()
		return nil, err
	}

	lifecycleActions.WithLabelValues(string(action), "ok").Inc()
	if e.Bus != nil {
		e.Bus.Publish(domain.Event{Type: domain.EventFor(target), ID: sub.ID})
	}
	return sub, nil
}
