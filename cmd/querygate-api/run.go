package main

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/cmd"
	"github.com/dukex/querygate/pkg/credentials"
	"github.com/dukex/querygate/pkg/eventbus"
	"github.com/dukex/querygate/pkg/execution"
	"github.com/dukex/querygate/pkg/log"
	"github.com/dukex/querygate/pkg/metrics"
	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/notify"
	"github.com/dukex/querygate/pkg/offload"
	"github.com/dukex/querygate/pkg/otelhelper"
	"github.com/dukex/querygate/pkg/registry"
	"github.com/dukex/querygate/pkg/retention"
	"github.com/dukex/querygate/pkg/scripts"
	"github.com/dukex/querygate/pkg/services"
	"github.com/dukex/querygate/pkg/web"
	cli "github.com/urfave/cli/v3"
)

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing querygate API")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer := otelhelper.NoopTracer()

	if command.Bool("otel-enabled") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "querygate-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
			}
		}()

		tracer = t
	}

	m := metrics.New()

	persistence, err := cmd.NewPersistence(ctx, log.WithModule("persistence"), command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	instances, err := registry.LoadFile(log.WithModule("registry"), command.String("instances-file"))
	if err != nil {
		return err
	}

	codec, err := credentials.NewAESCodec(command.String("credential-secret"))
	if err != nil {
		return fmt.Errorf("invalid credential secret: %w", err)
	}

	var defaults *models.Credentials
	if command.Bool("allow-default-credentials") {
		defaults = &models.Credentials{
			Username: command.String("default-db-user"),
			Password: command.String("default-db-password"),
		}
	}

	store, closeStore, err := cmd.NewStore(ctx, cmd.StorageConfig{
		URL:        command.String("storage-url"),
		PublicURL:  command.String("storage-public-url"),
		S3Region:   command.String("s3-region"),
		S3Endpoint: command.String("s3-endpoint"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize artifact storage: %w", err)
	}

	defer func() {
		if err := closeStore(); err != nil {
			logger.ErrorContext(ctx, "Failed to close artifact storage", "error", err)
		}
	}()

	scriptStore, err := scripts.NewStore(command.String("scripts-dir"), scripts.DefaultMaxSize)
	if err != nil {
		return err
	}

	resolver := execution.NewCredentialResolver(codec, defaults)
	truncator := offload.NewTruncator(store, log.WithModule("offload"), offload.WithObserver(m))
	dispatcher := execution.NewDispatcher(
		log.WithModule("dispatcher"),
		instances,
		execution.NewRelational(log.WithModule("relational"), resolver, truncator),
		execution.NewDocument(log.WithModule("document"), resolver, truncator),
		execution.NewScript(log.WithModule("script"), scriptStore, resolver, execution.DefaultScriptTimeout),
		execution.WithTracer(tracer),
		execution.WithObserver(m),
	)

	names := cmd.ParseNotifiers(command.String("notifiers"))

	var bus eventbus.EventBus
	if slices.Contains(names, "eventbus") {
		bus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), log.WithModule("eventbus"))
		if err != nil {
			return err
		}

		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()
	}

	notifierCfg := cmd.NotifierConfig{
		Names:      names,
		RedisURL:   command.String("redis-url"),
		RedisQueue: command.String("redis-queue"),
		WebhookURL: command.String("webhook-url"),
	}
	if bus != nil {
		notifierCfg.EventBus = bus
	}

	notifier, closeNotifier, err := cmd.NewNotifier(ctx, log.WithModule("notify"), notifierCfg)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeNotifier(); err != nil {
			logger.ErrorContext(ctx, "Failed to close notifiers", "error", err)
		}
	}()

	outbox := notify.NewOutbox(notifier, log.WithModule("notify"))

	defer func() {
		if err := outbox.Wait(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Pending notifications were dropped", "error", err)
		}
	}()

	policy := retention.NewPolicy(retention.DefaultWindow)

	requests := services.NewRequest(
		log.WithModule("requests"),
		persistence,
		instances,
		dispatcher,
		scriptStore,
		services.WithNotifier(outbox),
		services.WithObserver(m),
		services.WithRetentionPolicy(policy),
	)
	artifacts := services.NewArtifact(log.WithModule("artifacts"), persistence.ExecutionRepository(), store, policy)

	if schedule := command.String("retention-sweep"); schedule != "" {
		sweeper := retention.NewSweeper(
			log.WithModule("retention"),
			persistence.ExecutionRepository(),
			store,
			policy,
			retention.WithSchedule(schedule),
		)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}

		defer sweeper.Stop(context.WithoutCancel(ctx))
	}

	authenticator, err := auth.NewAuthenticator(command.String("jwt-secret"))
	if err != nil {
		return err
	}

	var handlerOpts []web.HandlerOption
	if local, ok := cmd.LocalFileStore(store); ok {
		handlerOpts = append(handlerOpts, web.WithLocalArtifacts(local))
	}

	api := NewAPI(logger, requests, artifacts, scriptStore, instances, authenticator, m, handlerOpts...)

	return api.Serve(ctx, int(command.Int("port")))
}
