// Package main provides the itemflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/itemflow/pkg/eventbus"
	"github.com/dukex/itemflow/pkg/metrics"
	"github.com/dukex/itemflow/pkg/models"
	"github.com/dukex/itemflow/pkg/persistence"
	"github.com/dukex/itemflow/pkg/services"
	"github.com/dukex/itemflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	validate *validator.Validate
	services web.Services
}

// NewAPI wires the services over persistence. eventBus and tracer may be nil.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	registry := prometheus.NewRegistry()

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(metrics.NewCollector(registry)),
	}

	if eventBus != nil {
		opts = append(opts, services.WithPublisher(eventBus))
	}

	if tracer != nil {
		opts = append(opts, services.WithTracer(tracer))
	}

	return &API{
		logger:   logger,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		services: web.Services{
			Workflow:   services.NewWorkflow(persistence, opts...),
			Project:    services.NewProject(persistence, opts...),
			Item:       services.NewItem(persistence, opts...),
			Transition: services.NewTransition(persistence, opts...),
			Principal:  services.NewPrincipal(persistence, opts...),
		},
	}
}

// ImportTemplates stores the given system templates before the server starts.
func (a *API) ImportTemplates(ctx context.Context, templates []*models.WorkflowDescription) error {
	if len(templates) == 0 {
		return nil
	}

	return a.services.Workflow.ImportTemplates(ctx, templates)
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.services, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Itemflow API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
