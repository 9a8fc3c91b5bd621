// Command worker runs a stateless MapReduce worker.
//
// Usage: worker <user_app_path>
//
// <user_app_path> is a Go plugin (built with `go build -buildmode=plugin`)
// exposing Map and Reduce symbols matching the user-application
// interface in internal/mrapi. The plugin mechanism is just the
// loader; the Map/Reduce function signatures are what's load-bearing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"plugin"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yashch22/mrcore/internal/config"
	"github.com/yashch22/mrcore/internal/discovery"
	"github.com/yashch22/mrcore/internal/logging"
	"github.com/yashch22/mrcore/internal/mrapi"
	"github.com/yashch22/mrcore/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "worker <user_app_path>",
		Short:         "run map/reduce tasks assigned by a coordinator",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runWorker,
	}
}

func runWorker(_ *cobra.Command, args []string) error {
	mapf, reducef, err := loadApp(args[0])
	if err != nil {
		return err
	}

	log := logging.New("worker")
	cfg := config.Load()
	id := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := discovery.Wait(ctx, discovery.DefaultPath)
	if err != nil {
		return fmt.Errorf("worker: waiting for coordinator: %w", err)
	}

	log.Info().Str("worker_id", id).Str("coordinator", addr).Msg("starting worker")
	w := worker.New(id, addr, worker.App{Map: mapf, Reduce: reducef},
		worker.WithLogger(log),
		worker.WithPollInterval(cfg.PollInterval),
	)
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

func loadApp(path string) (mrapi.MapFunc, mrapi.ReduceFunc, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("worker: load app %s: %w", path, err)
	}

	mapSym, err := p.Lookup("Map")
	if err != nil {
		return nil, nil, fmt.Errorf("worker: app %s missing Map: %w", path, err)
	}
	reduceSym, err := p.Lookup("Reduce")
	if err != nil {
		return nil, nil, fmt.Errorf("worker: app %s missing Reduce: %w", path, err)
	}

	mapf, ok := mapSym.(func(string, string) []mrapi.KeyValue)
	if !ok {
		return nil, nil, fmt.Errorf("worker: app %s: Map has the wrong signature", path)
	}
	reducef, ok := reduceSym.(func(string, []string) string)
	if !ok {
		return nil, nil, fmt.Errorf("worker: app %s: Reduce has the wrong signature", path)
	}

	return mapf, reducef, nil
}
