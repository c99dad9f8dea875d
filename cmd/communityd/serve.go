package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/tbourn/go-community-directory/internal/http"
	"github.com/tbourn/go-community-directory/internal/observability"
	"github.com/tbourn/go-community-directory/internal/repo"
)

const (
	shutdownGrace = 15 * time.Second
	purgeEvery    = time.Hour
)

func (s *srv) startServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, s.cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			s.logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	if err := s.loadStore(ctx); err != nil {
		return err
	}
	defer s.close()
	if c.Bool("migrate") {
		if err := repo.AutoMigrate(s.db); err != nil {
			return err
		}
	}
	if err := s.loadUploader(); err != nil {
		return err
	}

	if err := s.directory.Start(ctx); err != nil {
		return err
	}
	defer s.directory.Stop()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Submissions: s.submissions,
		Admin:       s.admin,
		Policy:      s.policy,
		Directory:   s.directory,
		Idempotency: repo.IdempotencyStore{DB: s.db, TTL: s.cfg.IdempotencyTTL},
		Verifier:    s.verifier,
		Uploader:    s.uploader,
	}, s.cfg)

	// Hijacked websocket connections are not tracked by Shutdown. They watch
	// this context, which is cancelled once the plain requests have drained.
	liveCtx, closeLive := context.WithCancel(context.WithoutCancel(ctx))
	defer closeLive()

	hs := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           r,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return liveCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().
			Str("addr", hs.Addr).
			Str("version", version).
			Bool("auth", s.verifier != nil).
			Str("db", s.cfg.DB.Driver).
			Msg("http server listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.logger.Info().Msg("http server shutting down")
		err := hs.Shutdown(sctx)
		closeLive()
		return err
	})
	g.Go(func() error {
		s.purgeLoop(gctx)
		return nil
	})

	return g.Wait()
}

// purgeLoop drops expired idempotency keys every hour until ctx ends.
func (s *srv) purgeLoop(ctx context.Context) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, s.db, now.UTC())
			if err != nil {
				s.logger.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				s.logger.Debug().Int64("deleted", n).Msg("purged idempotency keys")
			}
		}
	}
}
