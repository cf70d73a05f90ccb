package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/log"
	"github.com/dukex/taskpipe/pkg/trigger"
	"github.com/urfave/cli/v3"
)

var ErrInvalidFlows = errors.New("invalid flows found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate flow definitions and their triggers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "flows-path",
				Usage:   "Directory containing flow definitions (*.json, *.yaml, *.yml)",
				Value:   "./flows",
				Sources: cli.EnvVars("FLOWS_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskpipe-activator").With("action", "validate")

			repository := flows.NewFileRepository(logger, command.String("flows-path"))

			if _, err := repository.Load(ctx); err != nil {
				return err
			}

			all, err := repository.All(ctx)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(os.Stdout, "Flow Validation Results:")
			_, _ = fmt.Fprintln(os.Stdout, "========================")

			for _, flow := range all {
				def, _ := trigger.Parse(flow.ID, flow.Trigger)
				_, _ = fmt.Fprintf(os.Stdout, "  ✓ %s (%s): %s trigger, %d tasks\n", flow.Name, flow.ID, def.Kind(), len(flow.Tasks))
			}

			invalid := repository.Invalid()
			for _, file := range slices.Sorted(maps.Keys(invalid)) {
				_, _ = fmt.Fprintf(os.Stdout, "  ✗ %s: %v\n", file, invalid[file])
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nSummary: %d valid, %d invalid\n", len(all), len(invalid))

			if len(invalid) > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidFlows, len(invalid))
			}

			return nil
		},
	}
}
