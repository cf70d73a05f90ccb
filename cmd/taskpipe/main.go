// Command taskpipe runs the API, the activator and a worker in one process
// sharing an in-memory event bus. Meant for local development.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/taskpipe/pkg/activator"
	"github.com/dukex/taskpipe/pkg/auth"
	"github.com/dukex/taskpipe/pkg/cmd"
	"github.com/dukex/taskpipe/pkg/eventbus"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/log"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/trigger"
	"github.com/dukex/taskpipe/pkg/web"
	"github.com/dukex/taskpipe/pkg/worker"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := &cli.Command{
		Name:                  "taskpipe",
		Usage:                 "Run the whole pipeline in a single process",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Start the API, the activator and a worker",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   9091,
						Sources: cli.EnvVars("PORT"),
					},
					&cli.StringFlag{
						Name:    "flows-path",
						Usage:   "Directory containing flow definitions (*.json, *.yaml, *.yml)",
						Value:   "./flows",
						Sources: cli.EnvVars("FLOWS_PATH"),
					},
					&cli.StringFlag{
						Name:    "secret-store",
						Usage:   "Secret store URL (memory://, postgres://..., redis://...)",
						Value:   "memory://",
						Sources: cli.EnvVars("SECRET_STORE_URL"),
					},
					&cli.StringFlag{
						Name:    "secret-passphrase",
						Sources: cli.EnvVars("SECRET_PASSPHRASE"),
					},
					&cli.StringFlag{
						Name:    "plugins-path",
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
					&cli.DurationFlag{
						Name:    "handshake-ttl",
						Usage:   "How long an unfinished OAuth handshake is kept (0 keeps it forever)",
						Value:   10 * time.Minute,
						Sources: cli.EnvVars("HANDSHAKE_TTL"),
					},
					&cli.StringSliceFlag{
						Name:    "oauth-providers",
						Sources: cli.EnvVars("OAUTH_PROVIDERS"),
					},
					&cli.StringFlag{
						Name:    "base-url",
						Value:   "http://localhost:9091",
						Sources: cli.EnvVars("BASE_URL"),
					},
					&cli.StringFlag{
						Name:    "log-level",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: run,
			},
		},
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

	logger := log.WithModule("taskpipe")

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

	eventBus, err := cmd.NewEventBus("gochannel", logger, nil, eventbus.WithConcurrency(int(command.Int("concurrency"))))
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	pipeline, err := cmd.NewPipeline(ctx, logger, store, cmd.PipelineConfig{
		PluginsPath: command.String("plugins-path"),
		HTTPTimeout: command.Duration("http-timeout"),
	})
	if err != nil {
		return err
	}

	providers, err := cmd.NewOAuthProviders(command.StringSlice("oauth-providers"), command.String("base-url"))
	if err != nil {
		return err
	}

	// The worker cache is shared, so local writes need no event round trip.
	secretService := secrets.NewService(logger, store, pipeline.Secrets)
	ttl := command.Duration("handshake-ttl")
	handshakes := auth.NewStore(logger, ttl)
	authFlow := auth.NewFlow(logger, handshakes, providers, secretService)

	flowActivator := activator.NewActivator("activator-local", flowRepository, eventBus, logger)
	manager := worker.NewManager(
		"worker-local",
		flowRepository,
		eventBus,
		pipeline.Sessions,
		pipeline.Processor,
		pipeline.Secrets,
		logger,
		worker.WithSessionIdleTimeout(command.Duration("session-idle-timeout")),
	)

	all, err := flowRepository.All(ctx)
	if err != nil {
		return err
	}

	scheduler := trigger.NewScheduler(logger, flowActivator.Fire)
	if _, err := scheduler.Register(all); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Both register handlers on the shared bus before it starts delivering.
	if err := flowActivator.Register(); err != nil {
		return err
	}

	if err := manager.Register(); err != nil {
		return err
	}

	g.Go(func() error { return flowActivator.Start(ctx) })
	g.Go(func() error { return manager.Start(ctx) })
	g.Go(func() error {
		handshakes.Run(ctx, ttl/2)

		return nil
	})
	g.Go(func() error {
		return web.NewServer(logger, eventBus, flowRepository, authFlow, secretService).Start(ctx, command.Int("port"))
	})

	scheduler.Start(ctx)

	return g.Wait()
}
