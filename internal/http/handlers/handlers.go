// Community directory HTTP handlers.
//
// Endpoints (mounted under the API base path):
//   - POST   /submissions                          (submit a community, idempotent)
//   - GET    /submissions/{id}                     (owner or admin)
//   - DELETE /submissions/{id}                     (owner while pending, or admin)
//   - GET    /me/submissions                      (caller's submissions, paginated)
//   - GET    /communities                         (public live list, ETag support)
//   - GET    /communities/live                    (websocket push of the live list)
//   - POST   /uploads/logo                        (multipart logo upload)
//   - GET    /admin/submissions                   (by status, paginated)
//   - POST   /admin/submissions/{id}/{action}     (approve, reject, delist)
//   - DELETE /admin/submissions/{id}
//   - GET    /admin/stats
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-community-directory/internal/directory"
	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
	"github.com/tbourn/go-community-directory/internal/upload"
	"github.com/tbourn/go-community-directory/internal/utils"
)

//
// Service contracts (context-aware)
//

// SubmissionService is the slice of services.SubmissionRepository the
// handlers use.
type SubmissionService interface {
	Create(ctx context.Context, submittedBy string, in services.SubmissionInput) (*domain.Submission, error)
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListPage(ctx context.Context, f repo.SubmissionFilter, page, pageSize int) ([]domain.Submission, int64, error)
	Stats(ctx context.Context) (map[domain.Status]int64, error)
	Delete(ctx context.Context, id string) error
}

// AdminService runs lifecycle actions and never returns a Go error.
type AdminService interface {
	Do(ctx context.Context, caller domain.Identity, action domain.Action, id, notes string) services.ActionResult
}

// Directory is the read side of the live directory projection.
type Directory interface {
	GetLiveCommunities(ctx context.Context) []domain.LiveCommunity
	Generation() uint64
	Status() (updated time.Time, healthy bool)
	Subscribe(cb directory.Callback) (unsubscribe func())
}

// IdempotencyRecorder remembers which submission a client key created.
type IdempotencyRecorder interface {
	Lookup(ctx context.Context, owner, scope, key string, now time.Time) (string, bool, error)
	Record(ctx context.Context, owner, scope, key, submissionID string, status int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. Optional collaborators are set with
// Options; a nil uploader disables logo uploads and a nil recorder disables
// idempotent replays.
type Handlers struct {
	subs  SubmissionService
	admin AdminService
	authz services.Authorizer
	dir   Directory

	idem      IdempotencyRecorder
	uploader  upload.Uploader
	uploadMax int64
	upgrader  websocket.Upgrader
	ping      time.Duration
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithIdempotency records created submissions under their Idempotency-Key.
func WithIdempotency(r IdempotencyRecorder) Option {
	return func(h *Handlers) { h.idem = r }
}

// WithUploader enables POST /uploads/logo with a size cap.
func WithUploader(u upload.Uploader, maxBytes int64) Option {
	return func(h *Handlers) {
		h.uploader = u
		if maxBytes > 0 {
			h.uploadMax = maxBytes
		}
	}
}

// WithLiveOrigins restricts which browser origins may open the live socket.
// Empty allows any origin.
func WithLiveOrigins(origins []string) Option {
	return func(h *Handlers) {
		if len(origins) == 0 {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// New constructs Handlers bound to the given services.
func New(subs SubmissionService, admin AdminService, authz services.Authorizer, dir Directory, opts ...Option) *Handlers {
	h := &Handlers{
		subs:      subs,
		admin:     admin,
		authz:     authz,
		dir:       dir,
		uploadMax: upload.DefaultMaxBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ping: 30 * time.Second,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination reads page and page_size, defaulting to 20 per page and
// capping at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), 20, 100)
}

// canRead reports whether caller may see submission id: admins always,
// otherwise only its submitter. A store failure is returned as is.
func (h *Handlers) canRead(ctx context.Context, caller domain.Identity, id string) (admin, allowed bool, err error) {
	if h.authz == nil {
		return false, false, nil
	}
	if h.authz.IsAdmin(ctx, caller) {
		return true, true, nil
	}
	if caller.Anonymous() {
		return false, false, nil
	}
	owner, err := h.authz.IsOwner(ctx, caller, id)
	return false, owner, err
}
