package web

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// Server serves the pipeline HTTP API.
type Server struct {
	logger   *slog.Logger
	eventBus eventbus.EventPublisher
	flows    flows.Repository
	auth     AuthFlow
	secrets  SecretService
	validate *validator.Validate
}

func NewServer(
	logger *slog.Logger,
	eventBus eventbus.EventPublisher,
	repository flows.Repository,
	authFlow AuthFlow,
	secretService SecretService,
) *Server {
	return &Server{
		logger:   logger,
		eventBus: eventBus,
		flows:    repository,
		auth:     authFlow,
		secrets:  secretService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *Server) App() *fiber.App {
	handlers := NewHandlers(a.logger, a.eventBus, a.flows, a.auth, a.secrets, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("taskpipe API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is done, then shuts the server down gracefully.
func (a *Server) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API")

		return app.ShutdownWithContext(context.WithoutCancel(ctx))
	}
}
