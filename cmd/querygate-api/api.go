// Package main provides the querygate API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/querygate/pkg/auth"
	"github.com/dukex/querygate/pkg/metrics"
	"github.com/dukex/querygate/pkg/services"
	"github.com/dukex/querygate/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger        *slog.Logger
	requests      *services.Request
	artifacts     *services.Artifact
	scripts       web.ScriptUploader
	instances     web.InstanceLister
	authenticator *auth.Authenticator
	metrics       *metrics.Metrics
	handlerOpts   []web.HandlerOption
	validate      *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	requests *services.Request,
	artifacts *services.Artifact,
	scripts web.ScriptUploader,
	instances web.InstanceLister,
	authenticator *auth.Authenticator,
	m *metrics.Metrics,
	handlerOpts ...web.HandlerOption,
) *API {
	return &API{
		logger:        logger,
		requests:      requests,
		artifacts:     artifacts,
		scripts:       scripts,
		instances:     instances,
		authenticator: authenticator,
		metrics:       m,
		handlerOpts:   handlerOpts,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.requests, a.artifacts, a.scripts, a.instances, a.validate, a.handlerOpts...)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("querygate API")
	})

	app.Get("/health", handlers.HealthCheck)

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	handlers.Register(app.Group("/api", auth.Middleware(a.authenticator)))

	return app
}

// Serve runs the API until ctx is cancelled, then shuts the server down.
func (a *API) Serve(ctx context.Context, port int) error {
	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down querygate API")

		if err := app.ShutdownWithContext(context.WithoutCancel(ctx)); err != nil {
			return err
		}

		return <-errCh
	}
}
