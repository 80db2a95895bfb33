package supertree

import "context"

// Worker is a supervised leaf: it exposes an Init entrypoint plus the
// restart and backoff policies that govern how its owning Watcher retries
// it after it exits.
//
// Init must be safe to call repeatedly: it is re-invoked on every restart,
// so any state a worker needs to reset between attempts must be reset
// inside Init itself, not in a constructor that only runs once. The
// Watcher does not cancel the context Init receives while its workers are
// running: shutdown arrives as a SIGTERM to the owning process, which
// installs no handler for it, so a running Init attempt is never told to
// stop through ctx.
type Worker interface {
	// Init runs the worker's body. Returning nil means a clean exit;
	// returning an error means an abnormal exit. Both are handled
	// identically by the owning Watcher's restart decision: no
	// RestartPolicy distinguishes a clean exit from an abnormal one.
	Init(ctx context.Context) error

	// RestartPolicy reports when this worker should be restarted.
	RestartPolicy() RestartPolicy

	// BackoffPolicy reports the retry cadence for this worker.
	BackoffPolicy() BackoffPolicy
}

// BaseWorker is an embeddable zero-value type providing the default
// RestartAlways restart policy and DefaultBackoffPolicy backoff policy.
// Embed it in a worker type to avoid implementing both methods by hand;
// override either by shadowing the method.
//
//	type MyWorker struct {
//	    supertree.BaseWorker
//	    name string
//	}
//
//	func (w *MyWorker) Init(ctx context.Context) error { ... }
type BaseWorker struct{}

// RestartPolicy returns RestartAlways.
func (BaseWorker) RestartPolicy() RestartPolicy { return RestartAlways }

// BackoffPolicy returns DefaultBackoffPolicy().
func (BaseWorker) BackoffPolicy() BackoffPolicy { return DefaultBackoffPolicy() }
