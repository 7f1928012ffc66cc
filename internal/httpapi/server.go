package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"OpportunityScout/internal/usecase"
)

// Deps wires the API to the application services.
type Deps struct {
	Control *usecase.ControlService
	Daemon  Restarter
	// BaseContext scopes anything the API starts that outlives a request.
	BaseContext     context.Context
	ExpireAfterDays int
	Logger          *slog.Logger
}

// New builds the fiber app with every control route mounted.
func New(deps Deps) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	app := fiber.New(fiber.Config{
		AppName:               "opportunityscout",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          5 * time.Minute,
		BodyLimit:             1 << 20,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(accessLog(logger))

	h := &Handler{
		svc:            deps.Control,
		daemon:         deps.Daemon,
		baseCtx:        baseCtx,
		expireAfterDay: deps.ExpireAfterDays,
		logger:         logger,
	}

	app.Get("/healthz", h.health)

	api := app.Group("/api/v1")
	api.Get("/configs", h.listConfigs)
	api.Post("/configs", h.createConfig)
	api.Get("/configs/:id", h.getConfig)
	api.Patch("/configs/:id", h.updateConfig)
	api.Delete("/configs/:id", h.deleteConfig)
	api.Post("/configs/:id/run", h.runConfig)

	// Static paths first so /queue/expire is not captured by /queue/:id.
	api.Post("/queue/expire", h.expireQueue)
	api.Get("/queue", h.listQueue)
	api.Get("/queue/:id", h.getItem)
	api.Post("/queue/:id/approve", h.approveItem)
	api.Post("/queue/:id/reject", h.rejectItem)
	api.Post("/queue/:id/listed", h.markListed)

	api.Get("/stats", h.stats)
	api.Post("/daemon/restart", h.restartDaemon)

	return app
}

func accessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("http request",
			"request_id", c.Locals(requestid.ConfigDefault.ContextKey),
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start))
		return err
	}
}
