// Command coordinator runs the scheduling core's coordinator process.
//
// Usage: coordinator <R> <input_file>...
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yashch22/mrcore/internal/config"
	"github.com/yashch22/mrcore/internal/coordinator"
	"github.com/yashch22/mrcore/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "coordinator <R> <input_file>...",
		Short:         "coordinate a MapReduce job over a pool of workers",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runCoordinator,
	}
}

func runCoordinator(_ *cobra.Command, args []string) error {
	r, err := strconv.Atoi(args[0])
	if err != nil || r < 1 {
		return fmt.Errorf("R must be an integer >= 1, got %q", args[0])
	}

	files := args[1:]
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("input file %s: %w", f, err)
		}
	}

	log := logging.New("coordinator")
	cfg := config.Load()
	c := coordinator.New(files, r, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Int("m", len(files)).Int("r", r).Msg("starting coordinator")
	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	log.Info().Msg("coordinator done")
	return nil
}
