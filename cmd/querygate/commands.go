package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/credentials"
	"github.com/dukex/querygate/pkg/log"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/offload"
	"github.com/dukex/querygate/pkg/registry"
	"github.com/dukex/querygate/pkg/screen"
	cli "github.com/urfave/cli/v3"
)

var errMissingArgument = errors.New("missing argument")

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a bearer token for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "Secret used to sign the token",
				Required: true,
				Sources:  cli.EnvVars("JWT_SECRET"),
			},
			&cli.StringFlag{Name: "id", Usage: "Actor ID", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.StringFlag{Name: "role", Usage: "Role (developer, manager, admin)", Value: string(models.RoleDeveloper)},
			&cli.StringFlag{Name: "team", Usage: "Team the actor belongs to"},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: auth.DefaultTTL},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			authenticator, err := auth.NewAuthenticator(command.String("jwt-secret"))
			if err != nil {
				return err
			}

			token, err := authenticator.Issue(models.Actor{
				ID:   command.String("id"),
				Name: command.String("name"),
				Role: models.Role(command.String("role")),
				Team: command.String("team"),
			}, command.Duration("ttl"))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(command.Root().Writer, token)

			return err
		},
	}
}

func encryptCredentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt-credentials",
		Usage: "Produce a credential_ref for the instances file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "credential-secret",
				Usage:    "Secret shared with the API server",
				Required: true,
				Sources:  cli.EnvVars("CREDENTIAL_SECRET"),
			},
			&cli.StringFlag{Name: "username", Usage: "Database user", Required: true},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Database password",
				Sources: cli.EnvVars("DB_PASSWORD"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			codec, err := credentials.NewAESCodec(command.String("credential-secret"))
			if err != nil {
				return err
			}

			ref, err := codec.Encrypt(models.Credentials{
				Username: command.String("username"),
				Password: command.String("password"),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(command.Root().Writer, ref)

			return err
		},
	}
}

func screenCommand() *cli.Command {
	return &cli.Command{
		Name:      "screen",
		Usage:     "Screen a query or script for destructive operations",
		ArgsUsage: "[file|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "database-kind",
				Usage: "Target database kind (relational, document)",
				Value: string(models.DatabaseKindRelational),
			},
			&cli.StringFlag{
				Name:  "submission-kind",
				Usage: "Submission kind (query, script)",
				Value: string(models.SubmissionKindQuery),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			kind := models.DatabaseKind(command.String("database-kind"))
			if !kind.Valid() {
				return fmt.Errorf("unknown database kind %q", kind)
			}

			submission := models.SubmissionKind(command.String("submission-kind"))
			if !submission.Valid() {
				return fmt.Errorf("unknown submission kind %q", submission)
			}

			content, err := readInput(command)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(command.Root().Writer)
			encoder.SetIndent("", "  ")

			return encoder.Encode(screen.Screen(string(content), kind, submission))
		},
	}
}

func checkInstancesCommand() *cli.Command {
	return &cli.Command{
		Name:      "check-instances",
		Usage:     "Validate an instances file",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("%w: instances file", errMissingArgument)
			}

			reg, err := registry.LoadFile(log.WithModule("registry"), path)
			if err != nil {
				return err
			}

			w := command.Root().Writer
			for _, d := range reg.List() {
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Kind, d.Host); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintf(w, "%d instances OK\n", len(reg.List()))

			return err
		},
	}
}

func parseResultsCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse-results",
		Usage:     "Summarize an offloaded CSV result",
		ArgsUsage: "<file|->",
		Action: func(_ context.Context, command *cli.Command) error {
			if command.Args().First() == "" {
				return fmt.Errorf("%w: csv file", errMissingArgument)
			}

			content, err := readInput(command)
			if err != nil {
				return err
			}

			header, rows, err := offload.ParseCSV(strings.NewReader(string(content)))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "columns: %s\nrows: %d\n", strings.Join(header, ", "), len(rows))

			return err
		},
	}
}

// readInput reads the first argument as a file, or stdin when it is empty or "-".
func readInput(command *cli.Command) ([]byte, error) {
	path := command.Args().First()
	if path == "" || path == "-" {
		reader := command.Root().Reader
		if reader == nil {
			reader = os.Stdin
		}

		return io.ReadAll(reader)
	}

	return os.ReadFile(path)
}
