// Package httpapi wires the HTTP transport (Gin) to the directory services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// authentication, idempotency, rate limiting, CORS and security headers.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - All dependencies injected through Deps; no globals
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-community-directory/internal/auth"
	"github.com/tbourn/go-community-directory/internal/config"
	"github.com/tbourn/go-community-directory/internal/directory"
	"github.com/tbourn/go-community-directory/internal/docs"
	"github.com/tbourn/go-community-directory/internal/http/handlers"
	"github.com/tbourn/go-community-directory/internal/http/middleware"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
	"github.com/tbourn/go-community-directory/internal/upload"
)

// defaultBodyLimit caps JSON request bodies. Logo uploads get their own cap.
const defaultBodyLimit = 1 << 20

// Deps are the application services the routes are bound to.
type Deps struct {
	Submissions *services.SubmissionRepository
	Admin       *services.AdminActions
	Policy      *auth.Policy
	Directory   *directory.Projection
	Idempotency repo.IdempotencyStore

	// Verifier checks bearer tokens. Nil serves every caller anonymously.
	Verifier *auth.Verifier
	// Uploader stores logos. Nil disables POST /uploads/logo.
	Uploader upload.Uploader
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Authentication (identity for everything below)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS, security headers and gzip
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	api := cfg.APIBasePath

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Cookie", "X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limits
	uploadMax := cfg.Upload.MaxBytes
	if uploadMax <= 0 {
		uploadMax = upload.DefaultMaxBytes
	}
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		joinPath(api, "/uploads/logo"): uploadMax + 64<<10, // multipart framing
	}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Bearer authentication; anonymous callers pass through
	var verifier middleware.TokenVerifier
	if d.Verifier != nil {
		verifier = d.Verifier
	}
	r.Use(middleware.Authenticate(verifier, middleware.AuthOptions{}))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: handlers.IdempotencyScope, MaxLen: 200},
		d.Idempotency.Lookup,
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())
	submitRL := middleware.NewNamedRateLimiter("submit", cfg.SubmitRateRPS, cfg.SubmitRateBurst, middleware.KeyByUserOrIP())

	// 10) CORS posture (allow all when none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID", "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS);
	// personal and admin responses are never cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{joinPath(api, "/admin"), joinPath(api, "/me"), joinPath(api, "/submissions")},
		EnablePolicy:    true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics", joinPath(api, "/communities/live"),
	})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness and readiness
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(d.Directory))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = api
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithIdempotency(d.Idempotency))
	if d.Uploader != nil {
		opts = append(opts, handlers.WithUploader(d.Uploader, uploadMax))
		if cfg.Upload.Backend == "local" {
			r.Static(cfg.Upload.LocalBaseURL, cfg.Upload.LocalDir)
		}
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		opts = append(opts, handlers.WithLiveOrigins(cfg.CORS.AllowedOrigins))
	}
	h := handlers.New(d.Submissions, d.Admin, d.Policy, d.Directory, opts...)

	// Public API
	v1 := groupWithPrefix(r, api)
	{
		// Directory
		v1.GET("/communities", h.ListCommunities)
		v1.GET("/communities/live", h.LiveCommunities)

		// Submissions
		v1.POST("/submissions", submitRL.Handler(), h.CreateSubmission)
		v1.GET("/submissions/:id", middleware.RequireUser(), h.GetSubmission)
		v1.DELETE("/submissions/:id", middleware.RequireUser(), h.WithdrawSubmission)
		v1.GET("/me/submissions", middleware.RequireUser(), h.ListMySubmissions)

		// Uploads
		v1.POST("/uploads/logo", submitRL.Handler(), h.UploadLogo)
	}

	// Lifecycle actions authorize inside AdminActions so a refusal is
	// reported as an AuthorizationError result like every other outcome.
	admin := v1.Group("/admin", middleware.RequireUser())
	adminOnly := middleware.RequireAdmin(d.Policy.IsAdmin)
	{
		admin.POST("/submissions/:id/:action", h.AdminAction)
		admin.GET("/submissions", adminOnly, h.AdminListSubmissions)
		admin.DELETE("/submissions/:id", adminOnly, h.AdminDeleteSubmission)
		admin.GET("/stats", adminOnly, h.AdminStats)
	}
}

// readiness answers 503 until the directory has built its first list from
// the store. After that it stays 200: reads keep working from the last good
// list, so a later store outage only flips "status" to "degraded".
func readiness(dir *directory.Projection) gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, healthy := dir.Status()
		body := gin.H{"status": "ready", "directory_healthy": healthy}
		if updated.IsZero() {
			body["status"] = "starting"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["directory_updated_at"] = updated
		if !healthy {
			body["status"] = "degraded"
		}
		c.JSON(http.StatusOK, body)
	}
}

// limitBody caps request bodies with http.MaxBytesReader: maxBytes by
// default, or the override for an exact path. Requests exceeding the cap
// make downstream body reads fail.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.Request.URL.Path]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	return strings.TrimRight(prefix, "/") + p
}
