package main

import (
	"context"
	"os"

	"github.com/dukex/querygate/pkg/retention"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "querygate-api",
		Usage:                 "Review, approve and execute database requests",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "instances-file",
				Usage:    "Path to the YAML file describing the registered database instances",
				Required: true,
				Sources:  cli.EnvVars("INSTANCES_FILE"),
			},
			&cli.StringFlag{
				Name:    "storage-url",
				Usage:   "Where offloaded results are written (directory, file://, s3:// or gs://)",
				Value:   "./data/artifacts",
				Sources: cli.EnvVars("STORAGE_URL"),
			},
			&cli.StringFlag{
				Name:    "storage-public-url",
				Usage:   "Base URL returned for stored artifacts",
				Sources: cli.EnvVars("STORAGE_PUBLIC_URL"),
			},
			&cli.StringFlag{
				Name:    "s3-region",
				Usage:   "Region of the S3 bucket",
				Sources: cli.EnvVars("S3_REGION", "AWS_REGION"),
			},
			&cli.StringFlag{
				Name:    "s3-endpoint",
				Usage:   "Custom S3 endpoint (MinIO, LocalStack)",
				Sources: cli.EnvVars("S3_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "scripts-dir",
				Usage:   "Directory uploaded scripts are stored in",
				Value:   "./data/scripts",
				Sources: cli.EnvVars("SCRIPTS_DIR"),
			},
			&cli.StringFlag{
				Name:     "credential-secret",
				Usage:    "Secret used to decrypt instance credentials",
				Required: true,
				Sources:  cli.EnvVars("CREDENTIAL_SECRET"),
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "Secret used to verify bearer tokens",
				Required: true,
				Sources:  cli.EnvVars("JWT_SECRET"),
			},
			&cli.BoolFlag{
				Name:    "allow-default-credentials",
				Usage:   "Fall back to the default database user when an instance has no credentials",
				Sources: cli.EnvVars("ALLOW_DEFAULT_CREDENTIALS"),
			},
			&cli.StringFlag{
				Name:    "default-db-user",
				Usage:   "Default database user",
				Sources: cli.EnvVars("DEFAULT_DB_USER"),
			},
			&cli.StringFlag{
				Name:    "default-db-password",
				Usage:   "Default database password",
				Sources: cli.EnvVars("DEFAULT_DB_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "notifiers",
				Usage:   "Comma separated notification backends (log, eventbus, redis, webhook)",
				Value:   "log",
				Sources: cli.EnvVars("NOTIFIERS"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the notification queue",
				Value:   "redis://localhost:6379/0",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list notifications are pushed to",
				Value:   "querygate:notifications",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Usage:   "Chat webhook notifications are posted to",
				Sources: cli.EnvVars("WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "retention-sweep",
				Usage:   "Cron schedule of the expired artifact sweep, empty to disable",
				Value:   retention.DefaultSchedule,
				Sources: cli.EnvVars("RETENTION_SWEEP"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
