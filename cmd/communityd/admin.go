package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tbourn/go-community-directory/internal/auth"
	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/repo"
	"github.com/tbourn/go-community-directory/internal/sysutil"
)

// runAction applies the command's lifecycle action as an operator with the
// admin role and prints the ActionResult.
func (s *srv) runAction(c *cli.Context) error {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return cli.Exit("missing <submission-id>", 2)
	}
	if err := s.loadStore(c.Context); err != nil {
		return err
	}
	defer s.close()

	caller := domain.Identity{
		UserID: sysutil.FirstNonEmpty(c.String("by"), "cli"),
		Roles:  []string{domain.RoleAdmin},
	}
	res := s.admin.Do(c.Context, caller, domain.Action(c.Command.Name), id, c.String("notes"))
	if err := printJSON(c, res); err != nil {
		return err
	}
	if !res.OK {
		return cli.Exit(fmt.Sprintf("%s: %s", c.Command.Name, res.Error), 1)
	}
	return nil
}

type listOutput struct {
	Items    []domain.Submission `json:"items"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Total    int64               `json:"total"`
}

func (s *srv) startList(c *cli.Context) error {
	status := domain.Status(strings.ToLower(strings.TrimSpace(c.String("status"))))
	if status != "" && !status.Valid() {
		return cli.Exit(fmt.Sprintf("unknown status %q", status), 2)
	}
	if err := s.loadStore(c.Context); err != nil {
		return err
	}
	defer s.close()

	items, total, err := s.submissions.ListPage(c.Context, repo.SubmissionFilter{Status: status}, c.Int("page"), c.Int("page-size"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []domain.Submission{}
	}
	return printJSON(c, listOutput{Items: items, Page: c.Int("page"), PageSize: c.Int("page-size"), Total: total})
}

// startToken signs a bearer token with the configured secret. It is meant
// for local development and smoke tests.
func (s *srv) startToken(c *cli.Context) error {
	userID := strings.TrimSpace(c.Args().First())
	if userID == "" {
		return cli.Exit("missing <user-id>", 2)
	}
	if !s.cfg.Auth.Enabled() {
		return cli.Exit("AUTH_JWT_SECRET is not set", 2)
	}
	v, err := auth.NewVerifier(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	id := domain.Identity{UserID: userID}
	if c.Bool("admin") {
		id.Roles = []string{domain.RoleAdmin}
	}
	tok, err := v.Issue(id, c.Duration("ttl"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, tok)
	return err
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
