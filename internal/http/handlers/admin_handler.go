// Admin HTTP handlers.
//
// Lifecycle actions go through services.AdminActions and answer with its
// ActionResult as-is, so every admin surface (HTTP, CLI) reports the same
// discriminated outcome. The HTTP status mirrors the result's error kind.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
)

// ReviewRequest is the optional JSON body of a lifecycle action.
type ReviewRequest struct {
	// Notes are stored on the submission as review notes.
	Notes string `json:"notes" binding:"max=2000" example:"Duplicate of an existing listing"`
}

// StatsResponse summarizes the store and the live directory.
type StatsResponse struct {
	Counts     map[domain.Status]int64 `json:"counts"`
	Total      int64                   `json:"total"`
	Live       int                     `json:"live"`
	Generation uint64                  `json:"generation"`
	UpdatedAt  *time.Time              `json:"directory_updated_at,omitempty"`
	Healthy    bool                    `json:"directory_healthy"`
}

// AdminListSubmissions godoc
// @ID          adminListSubmissions
// @Summary     List submissions by status (paginated)
// @Description Returns submissions newest first, optionally filtered by status.
// @Tags        Admin
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer token with admin role"
// @Param       status         query   string  false  "pending|approved|rejected|delisted"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubmissionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     401  {object} handlers.ErrorResponse "Authentication required"
// @Failure     403  {object} handlers.ErrorResponse "Admin role required"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /admin/submissions [get]
func (h *Handlers) AdminListSubmissions(c *gin.Context) {
	status := domain.Status(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of pending, approved, rejected, delisted")
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.subs.ListPage(c.Request.Context(), repo.SubmissionFilter{Status: status}, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination:  newPagination(page, pageSize, total),
	})
}

// AdminAction godoc
// @ID          adminAction
// @Summary     Approve, reject or delist a submission
// @Description Runs a lifecycle action. Approving an approved submission succeeds without a second write.
// @Description The body is the action result: ok=true with the submission, or ok=false with an error kind.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true   "Bearer token with admin role"
// @Param       id             path    string  true   "Submission ID"
// @Param       action         path    string  true   "approve|reject|delist"
// @Param       body           body    handlers.ReviewRequest  false  "Review notes"
//
// @Success     200  {object} services.ActionResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} services.ActionResult  "AuthorizationError"
// @Failure     404  {object} services.ActionResult  "NotFound"
// @Failure     409  {object} services.ActionResult  "InvalidTransition"
// @Failure     503  {object} services.ActionResult  "TransientStoreError"
// @Router      /admin/submissions/{id}/{action} [post]
func (h *Handlers) AdminAction(c *gin.Context) {
	action := domain.Action(strings.ToLower(c.Param("action")))
	if _, known := action.Target(); !known {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown action")
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notes must be a string of at most 2000 characters")
		return
	}

	res := h.admin.Do(c.Request.Context(), middleware.Identity(c), action, c.Param("id"), strings.TrimSpace(req.Notes))
	writeResult(c, res)
}

// writeResult sends an ActionResult with the status its kind maps to.
func writeResult(c *gin.Context, res services.ActionResult) {
	if res.OK {
		ok(c, http.StatusOK, res)
		return
	}
	status, code := statusOf(res.Error)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("kind", string(res.Error)).
			Msg("admin action failed")
	}
	c.AbortWithStatusJSON(status, res)
}

// AdminDeleteSubmission godoc
// @ID          adminDeleteSubmission
// @Summary     Delete a submission
// @Description Hard-deletes a submission in any status. Status changes never use delete.
// @Tags        Admin
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token with admin role"
// @Param       id             path    string  true  "Submission ID"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /admin/submissions/{id} [delete]
func (h *Handlers) AdminDeleteSubmission(c *gin.Context) {
	if err := h.subs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// AdminStats godoc
// @ID          adminStats
// @Summary     Submission and directory statistics
// @Tags        Admin
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token with admin role"
//
// @Success     200  {object} handlers.StatsResponse
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable, retry"
// @Router      /admin/stats [get]
func (h *Handlers) AdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := h.subs.Stats(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := StatsResponse{Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	if h.dir != nil {
		resp.Live = len(h.dir.GetLiveCommunities(ctx))
		resp.Generation = h.dir.Generation()
		updated, healthy := h.dir.Status()
		if !updated.IsZero() {
			resp.UpdatedAt = &updated
		}
		resp.Healthy = healthy
	}
	ok(c, http.StatusOK, resp)
}
