package supertree

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Watcher is the body that runs inside each forked leaf process: it owns
// the workers taken out of its parent Supervisor at partition time and
// hosts them as goroutines under one errgroup.Group, the "cooperative
// multi-tasking runtime" of spec section 4.3. It blocks until every
// worker's backoff has given up, then returns, at which point the owning
// process exits cleanly and its parent ProcessGroup decides whether to
// re-spawn the Watcher itself.
type Watcher struct {
	workers []Worker
	logger  *slog.Logger
}

// newWatcher builds a Watcher over the given workers.
func newWatcher(workers []Worker, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{workers: workers, logger: logger}
}

// Start runs every worker's restart loop to completion. It is the Watcher's
// implementation of the Process capability and is only ever invoked inside
// a process freshly created for it (never inherited across a spawn
// boundary), so constructing the errgroup here is always safe.
func (w *Watcher) Start() error {
	g, ctx := errgroup.WithContext(context.Background())
	for _, worker := range w.workers {
		worker := worker
		g.Go(func() error {
			w.runWorker(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

// runWorker implements the per-worker loop from spec section 4.3:
//
//	loop:
//	    await backoff.inner.init()
//	    match backoff.maybeDelay():
//	        RetryAfterDelay(d): sleep(d); continue
//	        GiveUp: break
func (w *Watcher) runWorker(ctx context.Context, worker Worker) {
	b := newBackoff[Worker](worker)
	for {
		w.runInit(ctx, worker)

		decision := b.maybeDelay()
		if decision.GiveUp {
			w.logger.Debug("worker gave up", "restart_policy", worker.RestartPolicy())
			return
		}
		w.logger.Debug("worker restarting after delay", "delay", decision.Delay)

		t := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// runInit invokes worker.Init, recovering a panic and treating it
// identically to an ordinary error return (spec section 7: "a worker task
// that panics during init is caught ... and treated identically to a
// normal completion").
func (w *Watcher) runInit(ctx context.Context, worker Worker) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker init panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := worker.Init(ctx); err != nil {
		w.logger.Debug("worker init returned error", "err", err)
	}
}

// RestartPolicy reports RestartAlways: a Watcher that exits (because its
// own construction failed, or because a panic escaped Start entirely) is
// always worth retrying by its parent Supervisor's ProcessGroup.
func (w *Watcher) RestartPolicy() RestartPolicy { return RestartAlways }

// BackoffPolicy reports DefaultBackoffPolicy.
func (w *Watcher) BackoffPolicy() BackoffPolicy { return DefaultBackoffPolicy() }

var _ Process = (*Watcher)(nil)
