package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/taskpipe/pkg/cmd"
	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/log"
	"github.com/dukex/taskpipe/pkg/otelhelper"
	"github.com/dukex/taskpipe/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	cmd := &cli.Command{
		Name:                  "taskpipe-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute flow tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "flows-path",
				Usage:   "Directory containing flow definitions (*.json, *.yaml, *.yml)",
				Value:   "./flows",
				Sources: cli.EnvVars("FLOWS_PATH"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers, used when event-bus is kafka",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "secret-store",
				Usage:   "Secret store URL (memory://, postgres://..., redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("SECRET_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "secret-passphrase",
				Usage:   "Passphrase encrypting secrets at rest (postgres store)",
				Sources: cli.EnvVars("SECRET_PASSPHRASE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing action plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "How many events are handled at once; events of one flow session stay ordered",
				Value:   eventbus.DefaultConcurrency,
				Sources: cli.EnvVars("CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "session-idle-timeout",
				Usage:   "End flow sessions that receive no task for this long (0 disables)",
				Value:   worker.DefaultSessionIdleTimeout,
				Sources: cli.EnvVars("SESSION_IDLE_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				Usage:   "Timeout of outbound HTTP calls made by actions",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("HTTP_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	logger := log.WithModule("taskpipe-worker").With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing taskpipe worker")

	tracer := otelhelper.NoopTracer()

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "taskpipe-worker")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	return start(ctx, command, workerID, logger, tracer)
}

func start(ctx context.Context, command *cli.Command, workerID string, logger *slog.Logger, tracer trace.Tracer) error {
	flowRepository := flows.NewFileRepository(logger, command.String("flows-path"))
	if _, err := flowRepository.Load(ctx); err != nil {
		return err
	}

	store, closer, err := cmd.NewSecretStore(ctx, logger, command.String("secret-store"), command.String("secret-passphrase"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close secret store", "error", err)
		}
	}()

	pipeline, err := cmd.NewPipeline(ctx, logger, store, cmd.PipelineConfig{
		PluginsPath: command.String("plugins-path"),
		HTTPTimeout: command.Duration("http-timeout"),
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(
		command.String("event-bus"),
		logger,
		command.StringSlice("kafka-brokers"),
		eventbus.WithConcurrency(int(command.Int("concurrency"))),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	manager := worker.NewManager(
		workerID,
		flowRepository,
		eventBus,
		pipeline.Sessions,
		pipeline.Processor,
		pipeline.Secrets,
		logger,
		worker.WithSessionIdleTimeout(command.Duration("session-idle-timeout")),
	)

	return manager.Start(ctx)
}
