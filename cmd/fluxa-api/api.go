// Package main provides the Fluxa API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/fluxa-io/fluxa/pkg/eventbus"
	"github.com/fluxa-io/fluxa/pkg/persistence"
	"github.com/fluxa-io/fluxa/pkg/services"
	"github.com/fluxa-io/fluxa/pkg/web"
	"github.com/fluxa-io/fluxa/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	adapters    workflow.Adapters
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	adapters workflow.Adapters,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		adapters:    adapters,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	executor := workflow.NewExecutor(a.persistence, a.eventBus, a.adapters, nil, a.logger)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(a.persistence),
		services.NewApproval(a.persistence, executor, a.logger),
		services.NewTask(a.persistence),
		services.NewExport(a.persistence),
		executor,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Fluxa API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/enable", handlers.EnableWorkflow)
	w.Post("/:id/disable", handlers.DisableWorkflow)
	w.Post("/:id/share", handlers.ShareWorkflow)
	w.Post("/:id/run", handlers.RunWorkflow)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)

	approvals := app.Group("/approvals")
	approvals.Get("/", handlers.GetApprovals)
	approvals.Post("/:id/approve", handlers.ApproveApproval)
	approvals.Post("/:id/deny", handlers.DenyApproval)

	tasks := app.Group("/tasks")
	tasks.Get("/", handlers.GetTasks)
	tasks.Post("/", handlers.CreateTask)
	tasks.Get("/:id", handlers.GetTask)
	tasks.Post("/:id/cancel", handlers.CancelTask)

	app.Get("/export", handlers.ExportWorkflows)
	app.Post("/import", handlers.ImportWorkflows)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
