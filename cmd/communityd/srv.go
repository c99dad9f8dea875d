package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-directory/internal/auth"
	"github.com/tbourn/go-community-directory/internal/bus"
	"github.com/tbourn/go-community-directory/internal/changefeed"
	"github.com/tbourn/go-community-directory/internal/config"
	"github.com/tbourn/go-community-directory/internal/directory"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/services"
	"github.com/tbourn/go-community-directory/internal/sysutil"
	"github.com/tbourn/go-community-directory/internal/upload"
)

type srv struct {
	cfg    config.Config
	logger zerolog.Logger

	db   *gorm.DB
	feed changefeed.Feed
	bus  *bus.Bus

	submissions *services.SubmissionRepository
	policy      *auth.Policy
	engine      *services.LifecycleEngine
	admin       *services.AdminActions
	directory   *directory.Projection
	verifier    *auth.Verifier
	uploader    upload.Uploader
}

func (s *srv) loadConfig(envFiles []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.loadLogger()
	return nil
}

func (s *srv) loadLogger() {
	s.logger = sysutil.SetupLogger(os.Stderr, s.cfg.LogLevel, s.cfg.LogPretty).
		With().Str("service", s.cfg.OTEL.ServiceName).Logger()
	log.Logger = s.logger
	gin.SetMode(s.cfg.GinMode)
}

func (s *srv) loadDatabase() error {
	db, err := repo.Open(s.cfg.DB.Driver, s.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open %s database: %w", s.cfg.DB.Driver, err)
	}
	s.db = db
	return nil
}

// loadFeed connects the cross-instance change feed, or a no-op feed when no
// Redis URL is configured.
func (s *srv) loadFeed(ctx context.Context) error {
	if s.cfg.ChangeFeed.RedisURL == "" {
		s.feed = changefeed.Nop{}
		return nil
	}
	host, _ := os.Hostname()
	origin := sysutil.FirstNonEmpty(host, "communityd") + ":" + strconv.Itoa(os.Getpid())
	feed, err := changefeed.NewRedis(ctx, s.cfg.ChangeFeed.RedisURL, s.cfg.ChangeFeed.Channel, origin)
	if err != nil {
		return err
	}
	s.feed = feed
	return nil
}

// loadServices wires the repository, lifecycle engine, admin actions and the
// live directory on top of an open database and feed.
func (s *srv) loadServices() error {
	subs := services.NewSubmissionRepository(repo.NewSubmissionStore(s.db)).WithLogger(s.logger)
	subs.ReadTimeout = s.cfg.Store.ReadTimeout
	subs.WriteTimeout = s.cfg.Store.WriteTimeout
	if s.feed != nil {
		subs.Notifier = s.feed
	}
	s.submissions = subs

	s.bus = bus.New(s.logger)
	subs.Events = s.bus
	s.policy = auth.NewPolicy(s.cfg.Auth.AdminUserIDs, subs)
	s.engine = services.NewLifecycleEngine(subs, s.bus)
	s.admin = services.NewAdminActions(s.engine, s.policy)

	seeds, err := directory.LoadSeeds(s.cfg.Directory.SeedPath)
	if err != nil {
		return err
	}
	opts := directory.Options{
		Source:   subs,
		Seeds:    seeds,
		Events:   s.bus,
		Interval: s.cfg.Directory.PollInterval,
		Logger:   &s.logger,
	}
	if s.feed != nil {
		opts.Feed = s.feed
	}
	s.directory = directory.New(opts)

	if s.cfg.Auth.Enabled() {
		v, err := auth.NewVerifier(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTIssuer)
		if err != nil {
			return err
		}
		s.verifier = v
	}
	return nil
}

func (s *srv) loadUploader() error {
	u := s.cfg.Upload
	switch u.Backend {
	case "s3":
		up, err := upload.NewS3(upload.S3Config{
			Region:         u.S3Region,
			Endpoint:       u.S3Endpoint,
			AccessKey:      u.S3AccessKey,
			SecretKey:      u.S3SecretKey,
			Bucket:         u.S3Bucket,
			Prefix:         u.S3Prefix,
			PublicEndpoint: u.S3PublicEndpoint,
			SSLDisabled:    u.S3SSLDisabled,
			MaxBytes:       u.MaxBytes,
		})
		if err != nil {
			return err
		}
		s.uploader = up
	case "local":
		s.uploader = &upload.Local{Dir: u.LocalDir, BaseURL: u.LocalBaseURL, MaxBytes: u.MaxBytes}
	default:
		s.uploader = nil
	}
	return nil
}

// loadStore opens the database and the feed and wires the services. Admin
// commands use it too, so their writes reach running servers through the
// feed.
func (s *srv) loadStore(ctx context.Context) error {
	if err := s.loadDatabase(); err != nil {
		return err
	}
	if err := s.loadFeed(ctx); err != nil {
		return err
	}
	return s.loadServices()
}

func (s *srv) close() {
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close change feed")
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
