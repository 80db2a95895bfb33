// Package supertree provides an Erlang/OTP-style supervision tree for a
// POSIX host: a hierarchy of long-lived supervisors and workers where the
// parent is responsible for restarting a child that exits, with per-child
// restart and backoff policies. The tree is declared once as a static
// topology and then handed control of the calling process for its
// lifetime.
//
// Supervisors are isolated from one another by real OS processes (so a
// supervisor's crash, including a fatal signal, can never corrupt a
// sibling's state); the leaf workers of one supervisor are cooperatively
// scheduled goroutines inside that supervisor's single Watcher process.
//
// Basic usage:
//
//	tree := supertree.NewTree().
//	    AddWorker(myWorker).
//	    AddSupervisor(func(s *supertree.Supervisor) *supertree.Supervisor {
//	        return s.AddWorker(anotherWorker)
//	    })
//	if err := tree.Start(); err != nil {
//	    log.Fatal(err)
//	}
package supertree

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/docker/docker/pkg/reexec"

	"github.com/Gappylul/supertree/internal/possys"
)

// Tree is a supervision tree with a default root Supervisor. Build it with
// AddWorker/AddSupervisor/With* options, then hand it control via Start.
type Tree struct {
	root    *Supervisor
	logger  *slog.Logger
	started atomic.Bool
}

// TreeOption configures a Tree during creation.
type TreeOption func(*Tree)

// WithTreeBackoffPolicy sets the root supervisor's own backoff policy. The
// root is not restarted by any parent, and its Watcher always reports
// DefaultBackoffPolicy, so this value does not change any restart delay.
func WithTreeBackoffPolicy(p BackoffPolicy) TreeOption {
	return func(t *Tree) { t.root.backoffPolicy = p }
}

// WithTreeRestartPolicy sets the root supervisor's own restart policy. The
// root is not restarted by any parent, and its Watcher always reports
// RestartAlways, so this value does not change any restart decision.
func WithTreeRestartPolicy(p RestartPolicy) TreeOption {
	return func(t *Tree) { t.root.restartPolicy = p }
}

// WithTreeLogger sets the structured logger used for every diagnostic
// emitted by the tree (fork, exit, signal, restart decisions). Defaults to
// slog.Default().
func WithTreeLogger(logger *slog.Logger) TreeOption {
	return func(t *Tree) { t.logger = logger; t.root.logger = logger }
}

// WithTreeEventHandler registers a handler to receive lifecycle events in
// addition to the structured log lines every ProcessGroup already emits.
func WithTreeEventHandler(handler EventHandler) TreeOption {
	return func(t *Tree) { t.root.eventHandlers = append(t.root.eventHandlers, handler) }
}

// NewTree creates a new Tree with a default root Supervisor.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{
		root:   newSupervisor(nil, slog.Default(), nil),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddWorker adds a worker as a direct child of the root supervisor.
func (t *Tree) AddWorker(w Worker) *Tree {
	t.root.AddWorker(w)
	return t
}

// AddSupervisor adds a child supervisor to the root, populated by f.
func (t *Tree) AddSupervisor(f func(*Supervisor) *Supervisor) *Tree {
	t.root.AddSupervisor(f)
	return t
}

// Start hands control of the calling process to the tree for its entire
// lifetime. It returns only once the tree has fully collapsed (every
// descendant has given up for good, or a setup error made the group
// unsupervisable), or immediately with ErrTreeAlreadyStarted if called
// more than once.
//
// When this process is actually one of the tree's own re-exec'd
// descendants (see SPEC_FULL.md section 2), Start locates the node this
// process is responsible for and runs only that subtree, never returning:
// it calls os.Exit with the appropriate code once that subtree collapses.
func (t *Tree) Start() error {
	if t.started.Swap(true) {
		return ErrTreeAlreadyStarted
	}

	if pathEnv := os.Getenv(envPath); pathEnv != "" {
		t.runAsReexecChild(pathEnv)
		panic("unreachable: runAsReexecChild always calls os.Exit")
	}

	rootPID := possys.Getpid()
	propagateRootPID(t.root, rootPID)
	if err := possys.Setpgid(0, 0); err != nil {
		return fmt.Errorf("%w: placing root in its own process group: %v", ErrSetpgidFailed, err)
	}

	return t.root.run()
}

// runAsReexecChild is reached only in a process this tree itself spawned.
// It decodes which node it is responsible for, runs it, and exits with a
// code reflecting clean vs. abnormal completion (spec section 6: exit 0 on
// clean Start return, non-zero on a panic escaping Start).
func (t *Tree) runAsReexecChild(pathEnv string) {
	rootPID, err := strconv.Atoi(os.Getenv(envRootPID))
	if err != nil {
		t.logger.Error("missing or invalid root pid in re-exec environment", "err", err)
		os.Exit(1)
	}
	propagateRootPID(t.root, rootPID)

	path, err := decodePath(pathEnv)
	if err != nil {
		t.logger.Error("invalid re-exec path", "err", err)
		os.Exit(1)
	}

	proc, err := locateProcess(t.root, path)
	if err != nil {
		t.logger.Error("could not locate re-exec target", "path", path, "err", err)
		os.Exit(1)
	}

	os.Exit(runGuarded(proc))
}

// runGuarded calls proc.Start, catching a panic and translating it into a
// non-zero exit code exactly as spec section 9's "panic safety across
// fork" requires: the process must never let a panic unwind past Start, or
// its parent would see an abnormal (signaled) termination instead of a
// normal non-zero exit.
func runGuarded(proc Process) (code int) {
	defer func() {
		if r := recover(); r != nil {
			code = 1
		}
	}()
	if err := proc.Start(); err != nil {
		return 1
	}
	return 0
}

// reexecEntrypointRegistered is a package-level guard ensuring the
// docker/docker/pkg/reexec command name is registered exactly once, even
// if multiple Trees are constructed in the same binary (only one of them
// will ever actually be Started in a re-exec'd child process, since the
// embedder's own main() decides which Tree to build and start).
var reexecEntrypointRegistered = false

func init() {
	// Registering a name whose initializer does nothing keeps
	// reexec.Init() from being usable for our dispatch (Start reads
	// SUPERTREE_PATH directly instead, see runAsReexecChild), but we still
	// register the command name so `reexec.Command` produces an argv[0]
	// that other tooling inspecting the process table recognizes as a
	// supertree-managed child, matching how dockerd's own reexec helpers
	// self-identify.
	if !reexecEntrypointRegistered {
		reexec.Register(reexecCommand, func() {})
		reexecEntrypointRegistered = true
	}
}
