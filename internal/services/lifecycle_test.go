package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-community-directory/internal/domain"
)

func newEngine(t *testing.T) (*LifecycleEngine, *SubmissionRepository, *memStore, *recBus) {
	t.Helper()
	r, st := newRepo(t)
	b := &recBus{}
	return NewLifecycleEngine(r, b), r, st, b
}

func TestApprove_TwiceInSequence_IsIdempotent(t *testing.T) {
	e, r, st, b := newEngine(t)
	ctx := context.Background()
	s, err := r.Create(ctx, "", freeInput("Twice"))
	require.NoError(t, err)

	first, err := e.Approve(ctx, s.ID, "admin", "")
	require.NoError(t, err)
	second, err := e.Approve(ctx, s.ID, "admin", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.StatusApproved, st.status(s.ID))
	assert.Equal(t, 1, st.updates)

	// The repeat may broadcast again; every broadcast names the same change.
	for _, ev := range b.all() {
		assert.Equal(t, domain.Event{Type: domain.EventApproved, ID: s.ID}, ev)
	}
}

func TestApprove_Concurrent_SameFinalState(t *testing.T) {
	e, r, st, _ := newEngine(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, "", freeInput("Race"))
	st.Delay = 15 * time.Millisecond

	var wg sync.WaitGroup
	out := make([]*domain.Submission, 4)
	errs := make([]error, 4)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], errs[i] = e.Approve(ctx, s.ID, "admin", "")
		}(i)
	}
	wg.Wait()

	for i := range out {
		require.NoError(t, errs[i])
		assert.Equal(t, out[0], out[i])
	}
	assert.Equal(t, 1, st.updates)
}

func TestApprove_RejectedSubmission_InvalidTransition(t *testing.T) {
	e, r, st, b := newEngine(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, "", freeInput("Test Group"))

	rej, err := e.Reject(ctx, s.ID, "admin", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rej.Status)
	assert.Equal(t, "duplicate", rej.ReviewNotes)

	_, err = e.Approve(ctx, s.ID, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, domain.StatusRejected, st.status(s.ID))

	evs := b.all()
	require.Len(t, evs, 1, "failed actions publish nothing")
	assert.Equal(t, domain.EventRejected, evs[0].Type)
}

func TestDelist_OnlyFromApproved(t *testing.T) {
	e, r, _, b := newEngine(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, "", freeInput("D"))

	_, err := e.Delist(ctx, s.ID, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.Approve(ctx, s.ID, "admin", "")
	require.NoError(t, err)
	got, err := e.Delist(ctx, s.ID, "admin", "spam reports")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelisted, got.Status)
	assert.Equal(t, "spam reports", got.ReviewNotes)

	evs := b.all()
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventDelisted, evs[1].Type)
}

func TestApply_UnknownAction(t *testing.T) {
	e, _, _, _ := newEngine(t)
	_, err := e.Apply(context.Background(), "archive", "x", "admin", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApply_NotFound_TypedAndCounted(t *testing.T) {
	e, _, _, _ := newEngine(t)
	before := testutil.ToFloat64(lifecycleActions.WithLabelValues("approve", string(KindNotFound)))

	_, err := e.Approve(context.Background(), "missing", "admin", "")
	assert.ErrorIs(t, err, ErrNotFound)

	after := testutil.ToFloat64(lifecycleActions.WithLabelValues("approve", string(KindNotFound)))
	assert.Equal(t, before+1, after)
}

func TestApply_NilBus(t *testing.T) {
	r, _ := newRepo(t)
	e := NewLifecycleEngine(r, nil)
	s, _ := r.Create(context.Background(), "", freeInput("nb"))
	_, err := e.Approve(context.Background(), s.ID, "admin", "")
	assert.NoError(t, err)
}

func TestAdminActions_DiscriminatedResults(t *testing.T) {
	e, r, st, _ := newEngine(t)
	auth := staticAuth{admins: map[string]bool{"root": true}}
	a := NewAdminActions(e, auth)
	ctx := context.Background()
	admin := domain.Identity{UserID: "root"}

	s, _ := r.Create(ctx, "", freeInput("Test Group"))

	res := a.Approve(ctx, domain.Identity{UserID: "mallory"}, s.ID, "")
	assert.False(t, res.OK)
	assert.Equal(t, KindAuthorization, res.Error)
	assert.ErrorIs(t, res.Err(), ErrUnauthorized)
	assert.Equal(t, domain.StatusPending, st.status(s.ID))

	res = a.Reject(ctx, admin, s.ID, "duplicate")
	require.True(t, res.OK)
	assert.Equal(t, "root", res.Submission.ReviewedBy)
	assert.NoError(t, res.Err())

	res = a.Approve(ctx, admin, s.ID, "")
	assert.False(t, res.OK)
	assert.Equal(t, KindInvalidTransition, res.Error)
	assert.NotEmpty(t, res.Message)
	assert.Nil(t, res.Submission)

	res = a.Delist(ctx, admin, "ghost", "")
	assert.Equal(t, KindNotFound, res.Error)

	st.Err = errors.New("io timeout")
	res = a.Approve(ctx, admin, s.ID, "")
	assert.Equal(t, KindTransientStore, res.Error)
}

type panicUpdater struct{}

func (panicUpdater) UpdateStatus(context.Context, string, domain.Status, string, string) (*domain.Submission, error) {
	panic("driver bug")
}

func TestAdminActions_NeverPanics(t *testing.T) {
	a := NewAdminActions(NewLifecycleEngine(panicUpdater{}, nil), staticAuth{admins: map[string]bool{"root": true}})

	var res ActionResult
	assert.NotPanics(t, func() {
		res = a.Approve(context.Background(), domain.Identity{UserID: "root"}, "x", "")
	})
	assert.False(t, res.OK)
	assert.Equal(t, KindInternal, res.Error)
	assert.Error(t, res.Err())
}

func TestAdminActions_NilAuthorizerDeniesAll(t *testing.T) {
	e, _, _, _ := newEngine(t)
	a := NewAdminActions(e, nil)
	res := a.Approve(context.Background(), domain.Identity{UserID: "root"}, "x", "")
	assert.Equal(t, KindAuthorization, res.Error)
}

func TestKindOf(t *testing.T) {
	cases := map[ErrorKind]error{
		KindValidation:        &ValidationError{Fields: map[string]string{"name": "is required"}},
		KindNotFound:          ErrNotFound,
		KindInvalidTransition: &InvalidTransitionError{From: domain.StatusRejected, To: domain.StatusApproved},
		KindTransientStore:    transient("get", context.DeadlineExceeded),
		KindAuthorization:     ErrUnauthorized,
		KindInternal:          errors.New("other"),
	}
	for want, err := range cases {
		assert.Equal(t, want, KindOf(err), "KindOf(%v)", err)
	}
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestValidationError_MessageIsSortedAndStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "x", "a": "y"}}
	assert.Equal(t, "validation failed: a: y; b: x", err.Error())
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
}
