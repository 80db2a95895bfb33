// Command supertree-demo runs a small supervision tree as a standalone
// process, useful for manually observing restart/backoff behavior and
// process-group cleanup on a real POSIX host.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gappylul/supertree"
)

// flakyWorker exits with an error with probability failChance, to exercise
// the restart/backoff loop.
type flakyWorker struct {
	supertree.BaseWorker
	name       string
	failChance float64
}

func (w *flakyWorker) Init(ctx context.Context) error {
	slog.Info("worker starting", "name", w.name, "pid", os.Getpid())
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(500 * time.Millisecond):
	}
	if rand.Float64() < w.failChance {
		return fmt.Errorf("worker %s: simulated failure", w.name)
	}
	return nil
}

// steadyWorker always exits cleanly once, so a RestartNever policy is
// enough to demonstrate a worker that is not meant to run forever.
type steadyWorker struct {
	supertree.BaseWorker
	name string
}

func (w *steadyWorker) Init(ctx context.Context) error {
	slog.Info("steady worker running once", "name", w.name, "pid", os.Getpid())
	return nil
}

func (w *steadyWorker) RestartPolicy() supertree.RestartPolicy {
	return supertree.RestartNever
}

func main() {
	var restarts int64

	root := &cobra.Command{
		Use:   "supertree-demo",
		Short: "Run a small demo supervision tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			tree := supertree.NewTree(
				supertree.WithTreeLogger(slog.Default()),
				supertree.WithTreeEventHandler(func(e supertree.Event) {
					if e.Type == supertree.ChildRestarted {
						restarts++
					}
					slog.Debug("lifecycle event", "type", e.Type.String(), "pid", e.PID)
				}),
			).
				AddWorker(&flakyWorker{name: "flaky-a", failChance: 0.6}).
				AddWorker(&steadyWorker{name: "steady-b"}).
				AddSupervisor(func(s *supertree.Supervisor) *supertree.Supervisor {
					return s.
						WithRestartPolicy(supertree.RestartAlways).
						AddWorker(&flakyWorker{name: "flaky-nested", failChance: 0.3})
				})

			err := tree.Start()
			if err != nil && !errors.Is(err, supertree.ErrTreeAlreadyStarted) {
				return fmt.Errorf("tree collapsed: %w", err)
			}
			fmt.Fprintf(os.Stdout, "tree exited cleanly after %d restart(s)\n", restarts)
			return nil
		},
	}

	if err := root.Execute(); err != nil {
		slog.Error("supertree-demo failed", "err", err)
		os.Exit(1)
	}
}
