// Directory HTTP handlers.
//
// The public listing reads the live directory projection, which never fails:
// when the store is unreachable the last good list (or the seeds) is served
// and the response carries degraded=true.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-community-directory/internal/directory"
	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/utils"
)

const liveWriteWait = 10 * time.Second

// ListCommunitiesResponse is a page of the live directory.
type ListCommunitiesResponse struct {
	Communities []domain.LiveCommunity `json:"communities"`
	Categories  []string               `json:"categories"`
	Pagination  Pagination             `json:"pagination"`
	UpdatedAt   *time.Time             `json:"updated_at,omitempty"`
	Degraded    bool                   `json:"degraded"`
}

// LiveMessage is one websocket frame of GET /communities/live.
type LiveMessage struct {
	Type        string                 `json:"type" example:"snapshot"`
	Generation  uint64                 `json:"generation"`
	Communities []domain.LiveCommunity `json:"communities"`
}

// ListCommunities godoc
// @ID          listCommunities
// @Summary     List live communities (paginated)
// @Description Returns approved communities (newest first) followed by the seed examples.
// @Description Paid communities never include their join link. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Directory
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"communities:3\")
// @Param       category       query   string  false "Category (case-insensitive)"
// @Param       platform       query   string  false "whatsapp|slack|telegram|discord"
// @Param       join_type      query   string  false "free|paid"
// @Param       q              query   string  false "Free-text search over name, description and founder"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCommunitiesResponse
// @Header      200  {string} ETag  "Weak ETag for the current live list"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /communities [get]
func (h *Handlers) ListCommunities(c *gin.Context) {
	jt := domain.JoinType(strings.ToLower(strings.TrimSpace(c.Query("join_type"))))
	if jt != "" && !jt.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "join_type must be free or paid")
		return
	}
	page, pageSize := clampPagination(c)

	live := h.dir.GetLiveCommunities(c.Request.Context())
	gen := h.dir.Generation()
	updated, healthy := h.dir.Status()

	// The ETag is per URL: the same generation and query yield the same body.
	etag := fmt.Sprintf(`W/"communities:%d:%t"`, gen, healthy)
	c.Header("ETag", etag)
	if etagMatch(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}

	filtered := directory.Filter(live, directory.Query{
		Category: strings.TrimSpace(c.Query("category")),
		Platform: strings.TrimSpace(c.Query("platform")),
		JoinType: jt,
		Q:        c.Query("q"),
	})

	total := len(filtered)
	start, end := utils.Window(page, pageSize, total)

	resp := ListCommunitiesResponse{
		Communities: filtered[start:end],
		Categories:  directory.Categories(live),
		Pagination:  newPagination(page, pageSize, int64(total)),
		Degraded:    !healthy,
	}
	if !updated.IsZero() {
		resp.UpdatedAt = &updated
	}
	ok(c, http.StatusOK, resp)
}

// etagMatch implements the weak comparison of If-None-Match against etag.
func etagMatch(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || part == etag || "W/"+part == etag {
			return true
		}
	}
	return false
}

// LiveCommunities godoc
// @ID          liveCommunities
// @Summary     Stream the live directory
// @Description Upgrades to a websocket. The server sends a snapshot frame right away and again after every directory recompute.
// @Description Slow clients only ever receive the latest list. Client messages are ignored.
// @Tags        Directory
//
// @Success     101  {object} handlers.LiveMessage "Switching Protocols"
// @Failure     400  {string} string "Not a websocket handshake"
// @Router      /communities/live [get]
func (h *Handlers) LiveCommunities(c *gin.Context) {
	ctx := c.Request.Context()
	// Warm the projection so the first frame is not an empty pre-start list.
	_ = h.dir.GetLiveCommunities(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer middleware.TrackLiveConnection()()

	// Subscribers run under the recompute lock, so the generation read here
	// belongs to list.
	updates := make(chan liveFrame, 1)
	unsubscribe := h.dir.Subscribe(func(list []domain.LiveCommunity) {
		latest(updates, liveFrame{gen: h.dir.Generation(), list: list})
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.ping)
	defer ping.Stop()

	var (
		sent    bool
		lastGen uint64
	)

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case f := <-updates:
			// Recomputes that found nothing new are not worth a frame.
			if sent && f.gen == lastGen {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			msg := LiveMessage{Type: "snapshot", Generation: f.gen, Communities: f.list}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			sent, lastGen = true, f.gen
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

// liveFrame is one list delivered to a live connection with the generation
// it was built at.
type liveFrame struct {
	gen  uint64
	list []domain.LiveCommunity
}

// latest puts v into a one-slot channel, replacing any unread value.
func latest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
