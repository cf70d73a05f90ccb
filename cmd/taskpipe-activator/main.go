package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/taskpipe/pkg/activator"
	"github.com/dukex/taskpipe/pkg/cmd"
	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/log"
	"github.com/dukex/taskpipe/pkg/trigger"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "taskpipe-activator",
		Usage:                 "Match trigger events against flows and start flow sessions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "activator-id",
				Aliases: []string{"id"},
				Usage:   "Custom activator ID (auto-generated if not provided)",
				Sources: cli.EnvVars("ACTIVATOR_ID"),
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
			&cli.StringSliceFlag{
				Name:    "watch-path",
				Usage:   "Files or directories whose changes emit file_change events",
				Sources: cli.EnvVars("WATCH_PATHS"),
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

	activatorID := command.String("activator-id")
	if activatorID == "" {
		activatorID = "activator-" + uuid.NewString()[:8]
	}

	logger := log.WithModule("taskpipe-activator").With("activator_id", activatorID)

	logger.InfoContext(ctx, "Initializing taskpipe activator")

	flowRepository := flows.NewFileRepository(logger, command.String("flows-path"))
	if _, err := flowRepository.Load(ctx); err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, command.StringSlice("kafka-brokers"))
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	flowActivator := activator.NewActivator(activatorID, flowRepository, eventBus, logger)

	all, err := flowRepository.All(ctx)
	if err != nil {
		return err
	}

	scheduler := trigger.NewScheduler(logger, flowActivator.Fire)
	if _, err := scheduler.Register(all); err != nil {
		return err
	}

	scheduler.Start(ctx)

	if paths := command.StringSlice("watch-path"); len(paths) > 0 {
		watcher, err := trigger.NewFileWatcher(logger, flowActivator.Emit)
		if err != nil {
			return err
		}

		for _, path := range paths {
			if err := watcher.Add(path); err != nil {
				return err
			}
		}

		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("File watcher stopped", "error", err)
			}
		}()
	}

	return flowActivator.Start(ctx)
}
