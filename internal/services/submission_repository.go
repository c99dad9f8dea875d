// Package services – SubmissionRepository
//
// This file implements SubmissionRepository, the only writer of lifecycle
// state. It validates submission input, applies the transition table through
// a conditional store write, and bounds every store call with a fixed
// timeout. A timed-out call is reported as ErrTransientStore; nothing here
// retries, so the caller decides whether to try again.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/repo"
)

// Default store timeouts.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// SubmissionStore is the persistence contract the repository needs.
// *repo.SubmissionStore satisfies it; tests use in-memory fakes.
type SubmissionStore interface {
	Insert(ctx context.Context, s *domain.Submission) error
	Select(ctx context.Context, f repo.SubmissionFilter) ([]domain.Submission, error)
	Get(ctx context.Context, id string) (*domain.Submission, error)
	UpdateStatus(ctx context.Context, id string, expect domain.Status, patch repo.StatusPatch) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	Count(ctx context.Context, f repo.SubmissionFilter) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
}

// ChangeNotifier announces committed writes to other processes. It stands in
// for the store's change feed and is best effort: failures are logged only.
type ChangeNotifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// SubmissionInput is the shape accepted from submitters.
type SubmissionInput struct {
	Name             string          `json:"name"              validate:"required,max=100"`
	Category         string          `json:"category"          validate:"max=50"`
	Platform         string          `json:"platform"          validate:"omitempty,oneof=whatsapp slack telegram discord"`
	ShortDescription string          `json:"short_description" validate:"max=200"`
	LongDescription  string          `json:"long_description"  validate:"max=2000"`
	FounderName      string          `json:"founder_name"      validate:"max=100"`
	FounderBio       string          `json:"founder_bio"       validate:"max=500"`
	LogoURL          string          `json:"logo_url"          validate:"omitempty,url,max=500"`
	JoinType         domain.JoinType `json:"join_type"         validate:"required,oneof=free paid"`
	JoinLink         string          `json:"join_link"         validate:"required_if=JoinType free,omitempty,url,max=500"`
	PriceInR         *int            `json:"price_in_r"        validate:"required_if=JoinType paid,omitempty,gt=0"`
}

// SubmissionRepository provides typed CRUD and status transitions over a
// SubmissionStore.
type SubmissionRepository struct {
	Store    SubmissionStore
	Notifier ChangeNotifier
	// Events receives hard deletes so local readers drop the row at once.
	// Transitions are published by the LifecycleEngine.
	Events Publisher

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CategoryLocale drives category title-casing ("tech" -> "Tech").
	CategoryLocale language.Tag

	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSubmissionRepository constructs a repository with the default timeouts.
func NewSubmissionRepository(store SubmissionStore) *SubmissionRepository {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &SubmissionRepository{
		Store:          store,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		CategoryLocale: language.English,
		validate:       v,
		logger:         log.Logger.With().Str("component", "submission_repository").Logger(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger replaces the repository logger and returns r.
func (r *SubmissionRepository) WithLogger(l zerolog.Logger) *SubmissionRepository {
	r.logger = l.With().Str("component", "submission_repository").Logger()
	return r
}

// Create validates in and stores a new pending submission owned by
// submittedBy (empty for anonymous submitters).
func (r *SubmissionRepository) Create(ctx context.Context, submittedBy string, in SubmissionInput) (*domain.Submission, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("join_type", string(in.JoinType))),
	)
	defer span.End()

	in = r.normalize(in)
	if err := r.check(in); err != nil {
		return nil, err
	}

	s := &domain.Submission{
		Status:           domain.StatusPending,
		Name:             in.Name,
		Category:         in.Category,
		Platform:         in.Platform,
		ShortDescription: in.ShortDescription,
		LongDescription:  in.LongDescription,
		FounderName:      in.FounderName,
		FounderBio:       in.FounderBio,
		LogoURL:          in.LogoURL,
		JoinType:         in.JoinType,
		JoinLink:         in.JoinLink,
		PriceInR:         in.PriceInR,
		SubmittedBy:      submittedBy,
		CreatedAt:        r.now(),
	}
	if _, err := within(ctx, r.WriteTimeout, "insert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.Store.Insert(ctx, s)
	}); err != nil {
		return nil, classify("insert", err)
	}
	span.SetAttributes(attribute.String("submission.id", s.ID))
	r.notify(ctx, domain.Event{Type: domain.EventSubmitted, ID: s.ID})
	return s, nil
}

// GetByID returns the submission with id, or ErrNotFound.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "GetByID",
		trace.WithAttributes(attribute.String("submission.id", id)),
	)
	defer span.End()
	return r.get(ctx, id)
}

// ListByStatus returns every submission in status, newest first. Rows sharing
// a created_at are ordered by id so repeated calls agree.
func (r *SubmissionRepository) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Submission, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "ListByStatus",
		trace.WithAttributes(attribute.String("status", string(status))),
	)
	defer span.End()

	if !status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(status)}}
	}
	return r.list(ctx, repo.SubmissionFilter{Status: status})
}

// ListPage returns one page of submissions matching f plus the total count.
// page is 1-based; non-positive values fall back to page 1 and size 20.
func (r *SubmissionRepository) ListPage(ctx context.Context, f repo.SubmissionFilter, page, pageSize int) ([]domain.Submission, int64, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("status", string(f.Status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(f.Status)}}
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := within(ctx, r.ReadTimeout, "count", func(ctx context.Context) (int64, error) {
		return r.Store.Count(ctx, f)
	})
	if err != nil {
		return nil, 0, classify("count", err)
	}
	if total == 0 {
		return []domain.Submission{}, 0, nil
	}
	f.Offset, f.Limit = (page-1)*pageSize, pageSize
	items, err := r.list(ctx, f)
	return items, total, err
}

// Stats returns the number of submissions per status.
func (r *SubmissionRepository) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "Stats")
	defer span.End()

	out, err := within(ctx, r.ReadTimeout, "count_by_status", func(ctx context.Context) (map[domain.Status]int64, error) {
		return r.Store.CountByStatus(ctx)
	})
	if err != nil {
		return nil, classify("count_by_status", err)
	}
	return out, nil
}

// UpdateStatus moves submission id to next.
//
// A submission already in next is returned unchanged. Otherwise the move must
// be in the transition table and is written conditionally on the status read
// just before, so of two concurrent writers only one changes the row. The
// loser re-reads: if the row reached next anyway the call succeeds with that
// row, if it went elsewhere it is an InvalidTransitionError, and if it was
// deleted it is ErrNotFound.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, next domain.Status, reviewer, notes string) (*domain.Submission, error) {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("submission.id", id),
			attribute.String("status.next", string(next)),
		),
	)
	defer span.End()

	if !next.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(next)}}
	}

	cur, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("status.current", string(cur.Status)))
	if cur.Status == next {
		return cur, nil
	}
	if !domain.CanTransition(cur.Status, next) {
		return nil, &InvalidTransitionError{ID: id, From: cur.Status, To: next}
	}

	patch := repo.StatusPatch{
		Status:      next,
		ReviewedAt:  r.now(),
		ReviewedBy:  reviewer,
		ReviewNotes: strings.TrimSpace(notes),
	}
	n, err := within(ctx, r.WriteTimeout, "update", func(ctx context.Context) (int64, error) {
		return r.Store.UpdateStatus(ctx, id, cur.Status, patch)
	})
	if err != nil {
		return nil, classify("update", err)
	}

	after, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 && after.Status != next {
		return nil, &InvalidTransitionError{ID: id, From: after.Status, To: next}
	}
	if n > 0 {
		r.notify(ctx, domain.Event{Type: domain.EventFor(next), ID: id})
	}
	return after, nil
}

// Delete hard-deletes submission id. It is never used for status changes.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("services/SubmissionRepository").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("submission.id", id)),
	)
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	n, err := within(ctx, r.WriteTimeout, "delete", func(ctx context.Context) (int64, error) {
		return r.Store.Delete(ctx, id)
	})
	if err != nil {
		return classify("delete", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	ev := domain.Event{Type: domain.EventDeleted, ID: id}
	r.notify(ctx, ev)
	if r.Events != nil {
		r.Events.Publish(ev)
	}
	return nil
}

func (r *SubmissionRepository) get(ctx context.Context, id string) (*domain.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	s, err := within(ctx, r.ReadTimeout, "get", func(ctx context.Context) (*domain.Submission, error) {
		return r.Store.Get(ctx, id)
	})
	if err != nil {
		return nil, classify("get", err)
	}
	return s, nil
}

func (r *SubmissionRepository) list(ctx context.Context, f repo.SubmissionFilter) ([]domain.Submission, error) {
	out, err := within(ctx, r.ReadTimeout, "select", func(ctx context.Context) ([]domain.Submission, error) {
		return r.Store.Select(ctx, f)
	})
	if err != nil {
		return nil, classify("select", err)
	}
	if out == nil {
		out = []domain.Submission{}
	}
	return out, nil
}

func (r *SubmissionRepository) notify(ctx context.Context, ev domain.Event) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn().Err(err).
			Str("event", string(ev.Type)).
			Str("submission_id", ev.ID).
			Msg("change notification failed")
	}
}

// normalize trims every free-form field, lowercases the platform and
// title-cases the category. Free communities carry no price.
func (r *SubmissionRepository) normalize(in SubmissionInput) SubmissionInput {
	in.Name = collapseSpaces(in.Name)
	in.Category = collapseSpaces(in.Category)
	if in.Category != "" {
		in.Category = cases.Title(r.CategoryLocale).String(in.Category)
	}
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	in.ShortDescription = strings.TrimSpace(in.ShortDescription)
	in.LongDescription = strings.TrimSpace(in.LongDescription)
	in.FounderName = collapseSpaces(in.FounderName)
	in.FounderBio = strings.TrimSpace(in.FounderBio)
	in.LogoURL = strings.TrimSpace(in.LogoURL)
	in.JoinType = domain.JoinType(strings.ToLower(strings.TrimSpace(string(in.JoinType))))
	in.JoinLink = strings.TrimSpace(in.JoinLink)
	if in.JoinType == domain.JoinFree {
		in.PriceInR = nil
	}
	return in
}

func (r *SubmissionRepository) check(in SubmissionInput) error {
	err := r.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"_": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "failed " + fe.Tag()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// within runs fn under a deadline of d. The call races a timer: when the
// deadline passes first, within returns ErrTransientStore at once and the
// abandoned call finishes in the background. A store call that ignores its
// context therefore cannot hold the caller past d.
func within[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				done <- result{zero, fmt.Errorf("store %s panicked: %v", op, p)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, transient(op, ctx.Err())
	}
}

// classify maps store errors onto the service taxonomy. Not-found stays
// not-found; everything the store could not complete is transient.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTransientStore):
		return err
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	}
	return transient(op, err)
}
