//go:build linux || darwin

package supertree

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"testing"

	"github.com/docker/docker/pkg/reexec"

	"github.com/Gappylul/supertree/internal/possys"
)

// TestMain lets this test binary double as the re-exec target: when it is
// launched via reexec.Command(reexecCommand) (as ProcessGroup.spawn does),
// reexec.Init reports true and we dispatch on SUPERTREE_PATH ourselves
// instead of running the test suite, exactly the pattern
// docker/docker/pkg/reexec's own test suites use to test reexec-based code
// without a real embedding application. Like Tree.Start, the test process
// first makes itself the leader of its own process group, since every
// child ProcessGroup spawns joins the group whose id is the root pid.
func TestMain(m *testing.M) {
	if reexec.Init() {
		runReexecTestChild()
		return
	}
	if err := possys.Setpgid(0, 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// runReexecTestChild gives a small, fixed set of test paths deterministic
// exit behavior, mirroring how a real Tree's re-exec'd child would resolve
// its path and run to completion.
func runReexecTestChild() {
	path, err := decodePath(os.Getenv(envPath))
	if err != nil {
		os.Exit(9)
	}
	switch encodePath(path) {
	case "1":
		os.Exit(0) // clean exit
	case "2":
		os.Exit(1) // abnormal exit, but not signaled
	case "3":
		_ = syscall.Kill(os.Getpid(), syscall.SIGKILL) // fatal signal, never returns
	default:
		os.Exit(9)
	}
}

// testProcess is a Process whose Start is never actually invoked in these
// tests: ProcessGroup only ever calls Start() inside the spawned child
// (here, runReexecTestChild handles that role instead), and uses
// RestartPolicy/BackoffPolicy on the parent side to drive its own restart
// bookkeeping.
type testProcess struct {
	restart RestartPolicy
	backoff BackoffPolicy
}

func (p *testProcess) RestartPolicy() RestartPolicy { return p.restart }
func (p *testProcess) BackoffPolicy() BackoffPolicy { return p.backoff }
func (p *testProcess) Start() error                 { return nil }

var _ Process = (*testProcess)(nil)

func TestProcessGroupCollapsesCleanlyWhenChildGivesUp(t *testing.T) {
	pg := newProcessGroup(os.Getpid(), nil, slog.Default(), nil)
	pg.addProcess([]int{1}, &testProcess{restart: RestartNever, backoff: DefaultBackoffPolicy()})

	if err := pg.run(); err != nil {
		t.Fatalf("run() = %v, want nil once the sole child gives up", err)
	}
}

func TestProcessGroupRestartsOnceThenGivesUp(t *testing.T) {
	pg := newProcessGroup(os.Getpid(), nil, slog.Default(), nil)
	pg.addProcess([]int{2}, &testProcess{restart: RestartOnce, backoff: fastPolicy()})

	if err := pg.run(); err != nil {
		t.Fatalf("run() = %v, want nil after the child's single restart attempt is exhausted", err)
	}
}

func TestProcessGroupCollapsesWholeGroupOnSignaledChild(t *testing.T) {
	var events []EventType
	handler := func(e Event) { events = append(events, e.Type) }

	pg := newProcessGroup(os.Getpid(), nil, slog.Default(), []EventHandler{handler})
	pg.addProcess([]int{1}, &testProcess{restart: RestartAlways, backoff: fastPolicy()})
	pg.addProcess([]int{3}, &testProcess{restart: RestartAlways, backoff: fastPolicy()})

	if err := pg.run(); err != nil {
		t.Fatalf("run() = %v, want nil: a signaled child collapses the group without propagating an error", err)
	}

	var sawSignaled, sawCollapsed bool
	for _, e := range events {
		if e == ChildSignaled {
			sawSignaled = true
		}
		if e == GroupCollapsed {
			sawCollapsed = true
		}
	}
	if !sawSignaled || !sawCollapsed {
		t.Fatalf("events = %v, want both ChildSignaled and GroupCollapsed", events)
	}
}
