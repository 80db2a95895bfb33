package supertree

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// fakeWorker is a Worker whose Init behavior is driven entirely by test
// code, so Watcher's restart loop can be exercised without a real process
// boundary.
type fakeWorker struct {
	BaseWorker
	restart RestartPolicy
	backoff BackoffPolicy

	calls   atomic.Int32
	initFn  func(count int32) error
	panicOn int32 // if > 0, Init panics on this call number instead of calling initFn
}

func (w *fakeWorker) RestartPolicy() RestartPolicy { return w.restart }
func (w *fakeWorker) BackoffPolicy() BackoffPolicy { return w.backoff }

func (w *fakeWorker) Init(ctx context.Context) error {
	n := w.calls.Add(1)
	if w.panicOn != 0 && n == w.panicOn {
		panic("boom")
	}
	if w.initFn != nil {
		return w.initFn(n)
	}
	return nil
}

func fastPolicy() BackoffPolicy {
	p, err := NewBackoffPolicy(time.Millisecond, 5*time.Millisecond, time.Second, 2.0)
	if err != nil {
		panic(err)
	}
	return p
}

func TestWatcherRestartNeverRunsExactlyOnce(t *testing.T) {
	w := &fakeWorker{restart: RestartNever, backoff: fastPolicy()}
	watcher := newWatcher([]Worker{w}, slog.Default())

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := w.calls.Load(); got != 1 {
		t.Fatalf("Init called %d times, want 1", got)
	}
}

func TestWatcherRestartOnceRunsExactlyTwice(t *testing.T) {
	w := &fakeWorker{
		restart: RestartOnce,
		backoff: fastPolicy(),
		initFn:  func(int32) error { return errors.New("boom") },
	}
	watcher := newWatcher([]Worker{w}, slog.Default())

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := w.calls.Load(); got != 2 {
		t.Fatalf("Init called %d times, want 2", got)
	}
}

func TestWatcherRestartAlwaysStopsAfterNCalls(t *testing.T) {
	const target = 5
	w := &fakeWorker{restart: RestartAlways, backoff: fastPolicy()}
	w.initFn = func(n int32) error {
		if n >= target {
			w.restart = RestartNever
		}
		return nil
	}
	watcher := newWatcher([]Worker{w}, slog.Default())

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if got := w.calls.Load(); got != target {
		t.Fatalf("Init called %d times, want %d", got, target)
	}
}

func TestWatcherRecoversPanicInInit(t *testing.T) {
	w := &fakeWorker{restart: RestartNever, backoff: fastPolicy(), panicOn: 1}
	watcher := newWatcher([]Worker{w}, slog.Default())

	err := watcher.Start()
	if err != nil {
		t.Fatalf("Start returned error despite panic recovery: %v", err)
	}
	if got := w.calls.Load(); got != 1 {
		t.Fatalf("Init called %d times, want 1", got)
	}
}

func TestWatcherRunsMultipleWorkersConcurrently(t *testing.T) {
	a := &fakeWorker{restart: RestartNever, backoff: fastPolicy()}
	b := &fakeWorker{restart: RestartNever, backoff: fastPolicy()}
	watcher := newWatcher([]Worker{a, b}, slog.Default())

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("expected both workers to run once, got a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
}

var _ Worker = (*fakeWorker)(nil)
