// Submission HTTP handlers.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a submission was
// already created under (caller, key), the handler returns that submission
// and sets `Idempotency-Replayed: true` instead of inserting a second row.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
)

// IdempotencyScope namespaces submission keys in the idempotency table.
const IdempotencyScope = "submissions"

// ListSubmissionsResponse wraps a page of submissions and pagination information.
type ListSubmissionsResponse struct {
	Submissions []domain.Submission `json:"submissions"`
	Pagination  Pagination          `json:"pagination"`
}

// CreateSubmission godoc
// @ID          createSubmission
// @Summary     Submit a community for review
// @Description Validates the payload and stores a pending submission. Paid communities need a price; free communities need a join link.
// @Description Supports idempotency via the Idempotency-Key header (same key → same submission).
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer token (anonymous submissions allowed)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    services.SubmissionInput  true  "Submission payload"
//
// @Success     201  {object}  domain.Submission
// @Header      201  {string}  Idempotency-Replayed  "true when the response replays an earlier create"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many submissions"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable, retry"
// @Router      /submissions [post]
func (h *Handlers) CreateSubmission(c *gin.Context) {
	ctx := c.Request.Context()

	if id, replay := middleware.ReplayOf(c); replay {
		sub, err := h.subs.GetByID(ctx, id)
		switch {
		case err == nil:
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, sub)
			return
		case !errors.Is(err, services.ErrNotFound):
			failErr(c, err)
			return
		}
		// The recorded submission is gone; treat the request as new.
	}

	var in services.SubmissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sub, err := h.subs.Create(ctx, middleware.Identity(c).UserID, in)
	if err != nil {
		failErr(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.idem != nil {
		if first, replayed := h.remember(c, key, sub); replayed {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			sub = first
		}
	}
	ok(c, http.StatusCreated, sub)
}

// remember records created under key. When a concurrent request with the
// same key recorded first, the duplicate row is withdrawn and the first
// submission is returned with replayed=true.
func (h *Handlers) remember(c *gin.Context, key string, created *domain.Submission) (*domain.Submission, bool) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)
	owner := middleware.IdempotencyOwner(c)

	err := h.idem.Record(ctx, owner, IdempotencyScope, key, created.ID, http.StatusCreated)
	if err == nil {
		return created, false
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		lg.Warn().Err(err).Str("submission_id", created.ID).Msg("idempotency record failed")
		return created, false
	}

	prior, found, err := h.idem.Lookup(ctx, owner, IdempotencyScope, key, time.Now().UTC())
	if err != nil || !found || prior == created.ID {
		return created, false
	}
	first, err := h.subs.GetByID(ctx, prior)
	if err != nil {
		return created, false
	}
	if err := h.subs.Delete(ctx, created.ID); err != nil {
		lg.Warn().Err(err).Str("submission_id", created.ID).Msg("could not withdraw duplicate submission")
	}
	return first, true
}

// GetSubmission godoc
// @ID          getSubmission
// @Summary     Get a submission
// @Description Returns one submission. Visible to its submitter and to admins only.
// @Tags        Submissions
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Submission ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Submission
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Authentication required"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /submissions/{id} [get]
func (h *Handlers) GetSubmission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}
	ctx := c.Request.Context()

	_, allowed, err := h.canRead(ctx, middleware.Identity(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if !allowed {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
		return
	}

	sub, err := h.subs.GetByID(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// WithdrawSubmission godoc
// @ID          withdrawSubmission
// @Summary     Withdraw a submission
// @Description Deletes a submission. Submitters may withdraw only while it is pending; admins may delete any.
// @Tags        Submissions
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Submission ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     409  {object} handlers.ErrorResponse "Submission already reviewed"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /submissions/{id} [delete]
func (h *Handlers) WithdrawSubmission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}
	ctx := c.Request.Context()

	admin, allowed, err := h.canRead(ctx, middleware.Identity(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if !allowed {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
		return
	}
	if !admin {
		sub, err := h.subs.GetByID(ctx, id)
		if err != nil {
			failErr(c, err)
			return
		}
		if sub.Status != domain.StatusPending {
			fail(c, http.StatusConflict, ErrCodeInvalidTransition, "only pending submissions can be withdrawn")
			return
		}
	}

	if err := h.subs.Delete(ctx, id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListMySubmissions godoc
// @ID          listMySubmissions
// @Summary     List my submissions (paginated)
// @Description Returns the caller's submissions in every status, newest first.
// @Tags        Submissions
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer token"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubmissionsResponse
// @Failure     401  {object} handlers.ErrorResponse "Authentication required"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /me/submissions [get]
func (h *Handlers) ListMySubmissions(c *gin.Context) {
	caller := middleware.Identity(c)
	if caller.Anonymous() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.subs.ListPage(c.Request.Context(), repo.SubmissionFilter{SubmittedBy: caller.UserID}, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination:  newPagination(page, pageSize, total),
	})
}
