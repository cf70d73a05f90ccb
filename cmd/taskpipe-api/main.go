package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/taskpipe/pkg/auth"
	"github.com/dukex/taskpipe/pkg/cmd"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/log"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "taskpipe-api",
		Usage:                 "Receive webhooks, run flows manually and manage account secrets",
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
				Usage:   "Passphrase encrypting secrets at rest (postgres store)",
				Sources: cli.EnvVars("SECRET_PASSPHRASE"),
			},
			&cli.DurationFlag{
				Name:    "handshake-ttl",
				Usage:   "How long an unfinished OAuth handshake is kept (0 keeps it forever)",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("HANDSHAKE_TTL"),
			},
			&cli.StringSliceFlag{
				Name:    "oauth-providers",
				Usage:   "OAuth providers to enable, configured through <NAME>_CLIENT_ID and friends",
				Sources: cli.EnvVars("OAUTH_PROVIDERS"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Public URL of this API, used to build OAuth redirect URLs",
				Value:   fmt.Sprintf("http://localhost:%d", defaultPort),
				Sources: cli.EnvVars("BASE_URL"),
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

	logger := log.WithModule("taskpipe-api")

	logger.InfoContext(ctx, "Initializing taskpipe API")

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

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, command.StringSlice("kafka-brokers"))
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	secretService := secrets.NewService(logger, store, secrets.NewCache(logger, store))
	secretService.OnChange(web.SecretChangePublisher(logger, eventBus))

	providers, err := cmd.NewOAuthProviders(command.StringSlice("oauth-providers"), command.String("base-url"))
	if err != nil {
		return err
	}

	ttl := command.Duration("handshake-ttl")
	handshakes := auth.NewStore(logger, ttl)

	go handshakes.Run(ctx, ttl/2)

	authFlow := auth.NewFlow(logger, handshakes, providers, secretService)

	server := web.NewServer(logger, eventBus, flowRepository, authFlow, secretService)

	return server.Start(ctx, command.Int("port"))
}
