// Package main provides the querygate operator CLI.
package main

import (
	"context"
	"os"

	"github.com/dukex/querygate/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "querygate",
		Usage:                 "Operator tooling for querygate",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), "text")

			return ctx, nil
		},
		Commands: []*cli.Command{
			tokenCommand(),
			encryptCredentialsCommand(),
			screenCommand(),
			checkInstancesCommand(),
			parseResultsCommand(),
		},
	}
}
