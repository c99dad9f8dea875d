// Command communityd runs the community directory API and its operator
// tooling.
//
//	@title			Community Directory API
//	@version		1.0
//	@description	Submission review and live directory of community groups.
//	@BasePath		/api/v1
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var server srv

func main() {
	app := server.loadApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("communityd")
	}
}

func (s *srv) loadApp() *cli.App {
	app := cli.NewApp()
	app.Name = "communityd"
	app.Usage = "Community directory service"
	app.Version = version
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "env-file",
			Usage: "dotenv files loaded before reading the environment",
			Value: cli.NewStringSlice(".env"),
		},
	}
	app.Before = func(c *cli.Context) error {
		return s.loadConfig(c.StringSlice("env-file"))
	}
	app.Commands = []*cli.Command{
		{
			Action:      s.startServe,
			Name:        "serve",
			Usage:       "Start the HTTP API",
			Category:    "Server",
			Description: `Serves the REST API, the live directory websocket and /metrics until SIGINT or SIGTERM.`,
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "migrate", Usage: "apply schema migrations before serving", Value: true},
			},
		},
		{
			Action:      s.startMigrate,
			Name:        "migrate",
			Usage:       "Apply schema migrations",
			Category:    "Maintenance",
			Description: `Creates or updates the submissions and idempotency tables.`,
		},
		{
			Action:   s.startPurge,
			Name:     "purge-idempotency",
			Usage:    "Delete expired idempotency keys",
			Category: "Maintenance",
		},
		adminCommand("approve", "Approve a pending submission", s.runAction),
		adminCommand("reject", "Reject a pending submission", s.runAction),
		adminCommand("delist", "Remove an approved submission from the directory", s.runAction),
		{
			Action:    s.startList,
			Name:      "list",
			Usage:     "List submissions",
			Category:  "Admin",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "status", Usage: "pending|approved|rejected|delisted"},
				&cli.IntFlag{Name: "page", Value: 1},
				&cli.IntFlag{Name: "page-size", Value: 20},
			},
		},
		{
			Action:    s.startToken,
			Name:      "token",
			Usage:     "Issue a bearer token",
			Category:  "Admin",
			ArgsUsage: "<user-id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "admin", Usage: "grant the admin role"},
				&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
			},
		},
	}
	return app
}

func adminCommand(name, usage string, action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Action:    action,
		Name:      name,
		Usage:     usage,
		Category:  "Admin",
		ArgsUsage: "<submission-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "notes", Usage: "review notes stored on the submission"},
			&cli.StringFlag{Name: "by", Usage: "reviewer id recorded on the submission", EnvVars: []string{"USER"}},
		},
	}
}
