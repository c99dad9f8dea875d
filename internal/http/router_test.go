package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-community-directory/internal/auth"
	"github.com/tbourn/go-community-directory/internal/bus"
	"github.com/tbourn/go-community-directory/internal/config"
	"github.com/tbourn/go-community-directory/internal/directory"
	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
)

const testSecret = "router-test-secret-0123456789"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:     "/api/v1",
		RateRPS:         100,
		RateBurst:       100,
		SubmitRateRPS:   100,
		SubmitRateBurst: 100,
		OTEL:            config.OTELConfig{ServiceName: "test-svc"},
		Upload:          config.UploadConfig{Backend: "none"},
	}
}

type stack struct {
	db       *gorm.DB
	r        *gin.Engine
	dir      *directory.Projection
	verifier *auth.Verifier
}

func newStack(t *testing.T, cfg config.Config) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	nop := zerolog.Nop()
	subs := services.NewSubmissionRepository(repo.NewSubmissionStore(db)).WithLogger(nop)
	b := bus.New(nop)
	subs.Events = b
	policy := auth.NewPolicy([]string{"boss"}, subs)
	dir := directory.New(directory.Options{
		Source: subs,
		Seeds:  []domain.LiveCommunity{{ID: "seed-1", Name: "Seed", JoinType: domain.JoinFree, JoinLink: "https://example.com/seed"}},
		Events: b,
		Logger: &nop,
	})
	verifier, err := auth.NewVerifier(testSecret, "")
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		Submissions: subs,
		Admin:       services.NewAdminActions(services.NewLifecycleEngine(subs, b), policy),
		Policy:      policy,
		Directory:   dir,
		Idempotency: repo.IdempotencyStore{DB: db, TTL: time.Hour},
		Verifier:    verifier,
	}, cfg)
	return &stack{db: db, r: r, dir: dir, verifier: verifier}
}

func (s *stack) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.verifier.Issue(domain.Identity{UserID: userID}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *stack) do(method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	s := newStack(t, testConfig())

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	w = s.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := s.do(http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_Readiness(t *testing.T) {
	s := newStack(t, testConfig())

	if w := s.do(http.MethodGet, "/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before first recompute = %d", w.Code)
	}
	s.dir.GetLiveCommunities(context.Background())
	w := s.do(http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"directory_healthy":true`) {
		t.Fatalf("ready after recompute = %d %s", w.Code, w.Body.String())
	}

	// A later store outage keeps the instance ready but reports it degraded.
	if err := s.db.Migrator().DropTable(&domain.Submission{}); err != nil {
		t.Fatal(err)
	}
	if err := s.dir.Recompute(context.Background()); err == nil {
		t.Fatalf("recompute should fail without the submissions table")
	}
	w = s.do(http.MethodGet, "/ready", "", nil)
	body := w.Body.String()
	if w.Code != http.StatusOK || !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"directory_healthy":false`) {
		t.Fatalf("ready after failed recompute = %d %s", w.Code, body)
	}
}

func TestRegisterRoutes_CORS(t *testing.T) {
	t.Run("allow all", func(t *testing.T) {
		s := newStack(t, testConfig())
		w := s.do(http.MethodGet, "/health", "", nil, "Origin", "http://anywhere.test")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("ACAO = %q, want *", got)
		}
	})
	t.Run("allowlist", func(t *testing.T) {
		cfg := testConfig()
		cfg.CORS.AllowedOrigins = []string{"http://allowed.test"}
		s := newStack(t, cfg)

		// The origin must differ from the request host (example.com), or
		// the request is same-origin and CORS headers are skipped.
		w := s.do(http.MethodGet, "/health", "", nil, "Origin", "http://allowed.test")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allowed.test" {
			t.Fatalf("expected ACAO echo, got %q", got)
		}
		w = s.do(http.MethodGet, "/health", "", nil, "Origin", "http://evil.test")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("unlisted origin got ACAO %q", got)
		}
	})
}

func TestRegisterRoutes_AdminDeleteDropsFromLiveList(t *testing.T) {
	s := newStack(t, testConfig())
	if err := s.dir.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.dir.Stop)
	api := "/api/v1"
	admin := s.token(t, "boss")

	w := s.do(http.MethodPost, api+"/submissions", "", map[string]any{
		"name": "Short Lived", "join_type": "free", "join_link": "https://discord.gg/short",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var sub domain.Submission
	_ = json.Unmarshal(w.Body.Bytes(), &sub)

	inSnapshot := func() bool {
		for _, c := range s.dir.Snapshot() {
			if c.ID == sub.ID {
				return true
			}
		}
		return false
	}

	// Bus delivery is synchronous: no read or poll is needed in between.
	s.do(http.MethodPost, api+"/admin/submissions/"+sub.ID+"/approve", admin, nil)
	if !inSnapshot() {
		t.Fatalf("approved submission missing from live list")
	}
	if w := s.do(http.MethodDelete, api+"/admin/submissions/"+sub.ID, admin, nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d %s", w.Code, w.Body.String())
	}
	if inSnapshot() {
		t.Fatalf("deleted submission still in live list")
	}
}

func TestRegisterRoutes_SubmissionLifecycle(t *testing.T) {
	s := newStack(t, testConfig())
	api := "/api/v1"
	user := s.token(t, "u1")
	admin := s.token(t, "boss")

	w := s.do(http.MethodPost, api+"/submissions", user, map[string]any{
		"name": "Gophers Pune", "category": "tech", "platform": "discord",
		"join_type": "free", "join_link": "https://discord.gg/gophers",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var sub domain.Submission
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("submission response cacheable: %q", got)
	}

	// Anonymous reads of a submission need a token.
	if w := s.do(http.MethodGet, api+"/submissions/"+sub.ID, "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous get: %d", w.Code)
	}
	if w := s.do(http.MethodGet, api+"/submissions/"+sub.ID, user, nil); w.Code != http.StatusOK {
		t.Fatalf("owner get: %d", w.Code)
	}

	// A non-admin action is refused as an AuthorizationError result.
	w = s.do(http.MethodPost, api+"/admin/submissions/"+sub.ID+"/approve", user, nil)
	var res services.ActionResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusForbidden || res.Error != services.KindAuthorization {
		t.Fatalf("user approve: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(http.MethodGet, api+"/admin/stats", user, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user stats: %d", w.Code)
	}
	if w := s.do(http.MethodGet, api+"/admin/stats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous stats: %d", w.Code)
	}

	w = s.do(http.MethodPost, api+"/admin/submissions/"+sub.ID+"/approve", admin, map[string]string{"notes": "welcome"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin approve: %d %s", w.Code, w.Body.String())
	}

	// Reads recompute from the store, so the approval is visible at once.
	w = s.do(http.MethodGet, api+"/communities", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), sub.ID) {
		t.Fatalf("approved submission missing from directory: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(http.MethodGet, api+"/admin/stats", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("admin stats: %d", w.Code)
	}
}

func TestRegisterRoutes_BadTokenRejected(t *testing.T) {
	s := newStack(t, testConfig())
	if w := s.do(http.MethodGet, "/api/v1/communities", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
}

func TestRegisterRoutes_SubmitRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitRateRPS = 0.001
	cfg.SubmitRateBurst = 1
	s := newStack(t, cfg)

	body := map[string]any{"name": "Rate Club", "join_type": "free", "join_link": "https://example.com/j"}
	if w := s.do(http.MethodPost, "/api/v1/submissions", "", body); w.Code != http.StatusCreated {
		t.Fatalf("first submit: %d %s", w.Code, w.Body.String())
	}
	w := s.do(http.MethodPost, "/api/v1/submissions", "", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: %d", w.Code)
	}
	// Reads are not charged to the submit budget.
	if w := s.do(http.MethodGet, "/api/v1/communities", "", nil); w.Code != http.StatusOK {
		t.Fatalf("list after limit: %d", w.Code)
	}
}

func TestRegisterRoutes_UploadsDisabled(t *testing.T) {
	s := newStack(t, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/logo", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("upload while disabled: %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	s := newStack(t, testConfig())
	w := s.do(http.MethodGet, "/api/v1/communities", "", nil, "Accept-Encoding", "gzip")
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, got %d %q", w.Code, w.Header().Get("Content-Encoding"))
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	s := newStack(t, cfg)

	w := s.do(http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"/communities"`) {
		t.Fatalf("swagger doc: %d", w.Code)
	}

	off := newStack(t, testConfig())
	if w := off.do(http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotentSubmit(t *testing.T) {
	s := newStack(t, testConfig())
	user := s.token(t, "u1")
	body := map[string]any{"name": "Once Club", "join_type": "free", "join_link": "https://example.com/once"}

	first := s.do(http.MethodPost, "/api/v1/submissions", user, body, middleware.HeaderIdempotencyKey, "once-1")
	second := s.do(http.MethodPost, "/api/v1/submissions", user, body, middleware.HeaderIdempotencyKey, "once-1")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes: %d %d", first.Code, second.Code)
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("second create not replayed")
	}
	if w := s.do(http.MethodPost, "/api/v1/submissions", user, body, middleware.HeaderIdempotencyKey, "bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key: %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10, map[string]int64{"/big": 100}))
	echo := func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	}
	r.POST("/echo", echo)
	r.POST("/big", echo)

	payload := "0123456789AB" // 12 bytes
	cases := map[string]int{"/echo": http.StatusRequestEntityTooLarge, "/big": http.StatusOK}
	for path, want := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(payload)))
		if w.Code != want {
			t.Fatalf("POST %s = %d, want %d", path, w.Code, want)
		}
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_joinPath(t *testing.T) {
	if got := joinPath("/api/v1/", "/admin"); got != "/api/v1/admin" {
		t.Fatalf("joinPath = %q", got)
	}
	if got := joinPath("", "/admin"); got != "/admin" {
		t.Fatalf("joinPath root = %q", got)
	}
}
