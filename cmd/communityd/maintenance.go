package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tbourn/go-community-directory/internal/repo"
)

func (s *srv) startMigrate(c *cli.Context) error {
	if err := s.loadDatabase(); err != nil {
		return err
	}
	defer s.close()
	if err := repo.AutoMigrate(s.db); err != nil {
		return err
	}
	s.logger.Info().Str("db", s.cfg.DB.Driver).Msg("migrations applied")
	return nil
}

func (s *srv) startPurge(c *cli.Context) error {
	if err := s.loadDatabase(); err != nil {
		return err
	}
	defer s.close()
	n, err := repo.PurgeExpiredIdempotency(c.Context, s.db, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "deleted %d expired idempotency keys\n", n)
	return err
}
