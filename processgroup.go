//go:build linux || darwin

package supertree

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/docker/docker/pkg/reexec"
	"golang.org/x/sys/unix"

	"github.com/Gappylul/supertree/internal/possys"
)

// groupEntry is one (path, Process) pair awaiting its first spawn.
type groupEntry struct {
	path    []int
	process Process
}

// activeChild is the supervising loop's bookkeeping for one live pid: its
// full re-exec path (needed to respawn it identically) and its backoff
// state.
type activeChild struct {
	path []int
	b    *backoff[Process]
}

// ProcessGroup forks a set of Processes, places them in a shared process
// group rooted at rootPID, waits on them, applies per-child backoff on
// exit, and terminates the whole group on a fatal signal or lost wait
// observability. It is the engine described in spec section 4.6; "fork" is
// realized as a self-re-exec of the current binary (see SPEC_FULL.md
// section 2) rather than a raw fork(2), since Go cannot safely continue
// running arbitrary goroutine-scheduled code in a forked child.
type ProcessGroup struct {
	rootPID       int
	processes     []groupEntry
	logger        *slog.Logger
	eventHandlers []EventHandler
}

// newProcessGroup builds an empty ProcessGroup. parentPath is unused by the
// group itself (each entry already carries its own full path) but is
// accepted for symmetry with the rest of the package's constructors.
func newProcessGroup(rootPID int, _parentPath []int, logger *slog.Logger, handlers []EventHandler) *ProcessGroup {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessGroup{rootPID: rootPID, logger: logger, eventHandlers: handlers}
}

// addProcess registers a Process to be spawned when run is called, at the
// given full path from the true tree root.
func (pg *ProcessGroup) addProcess(path []int, process Process) {
	pg.processes = append(pg.processes, groupEntry{path: path, process: process})
}

// spawn re-execs the current binary as the child responsible for path,
// placing it directly into the rootPID process group via SysProcAttr so
// there is no post-spawn setpgid race (see DESIGN.md Open Question 3).
func (pg *ProcessGroup) spawn(path []int) (int, error) {
	cmd := reexec.Command(reexecCommand)
	cmd.Env = append(os.Environ(),
		envPath+"="+encodePath(path),
		envRootPID+"="+strconv.Itoa(pg.rootPID),
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    pg.rootPID,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrForkFailed, err)
	}
	return cmd.Process.Pid, nil
}

// run is the supervision loop of spec section 4.6. It blocks until every
// tracked pid has either given up for good or the whole group collapses.
func (pg *ProcessGroup) run() error {
	active := make(map[int]*activeChild, len(pg.processes))

	for _, entry := range pg.processes {
		pid, err := pg.spawn(entry.path)
		if err != nil {
			pg.logger.Error("fork failed, collapsing group", "err", err)
			pg.terminate(active)
			return err
		}
		pg.logger.Debug("forked child", "pid", pid, "path", entry.path)
		emitEvent(pg.eventHandlers, Event{PID: pid, Type: ChildForked})
		active[pid] = &activeChild{path: entry.path, b: newBackoff[Process](entry.process)}
	}

	for len(active) > 0 {
		result, err := possys.Wait4(pg.rootPID, 0)
		if err != nil {
			pg.logger.Warn("lost process group observability, collapsing", "err", err)
			pg.terminate(active)
			return fmt.Errorf("%w: %v", ErrWaitFailed, err)
		}

		if result.Signaled {
			pg.logger.Warn("child killed by signal, collapsing group",
				"pid", result.PID, "signal", result.Signal)
			emitEvent(pg.eventHandlers, Event{PID: result.PID, Type: ChildSignaled})
			pg.terminate(active)
			emitEvent(pg.eventHandlers, Event{Type: GroupCollapsed})
			return nil
		}

		if !result.Exited {
			continue
		}

		child, ok := active[result.PID]
		if !ok {
			pg.logger.Debug("reaped pid not tracked in this group", "pid", result.PID)
			continue
		}
		delete(active, result.PID)

		// Defensive SIGTERM, sent only for a pid we actually tracked and
		// only after it has already been reaped (drop-after-reap, see
		// DESIGN.md Open Question 1).
		if err := possys.Kill(result.PID, unix.SIGTERM); err != nil {
			pg.logger.Debug("defensive sigterm failed", "pid", result.PID, "err", err)
		}
		emitEvent(pg.eventHandlers, Event{PID: result.PID, Type: ChildExited})

		decision := child.b.maybeDelay()
		if decision.GiveUp {
			pg.logger.Debug("child gave up", "path", child.path)
			emitEvent(pg.eventHandlers, Event{PID: result.PID, Type: ChildGaveUp})
			continue
		}

		pg.logger.Debug("retrying child after delay", "path", child.path, "delay", decision.Delay)
		time.Sleep(decision.Delay)

		newPID, err := pg.spawn(child.path)
		if err != nil {
			pg.logger.Error("fork failed on restart, collapsing group", "err", err)
			pg.terminate(active)
			return err
		}
		emitEvent(pg.eventHandlers, Event{PID: newPID, Type: ChildRestarted})
		active[newPID] = &activeChild{path: child.path, b: child.b}
	}

	return nil
}

// terminate broadcasts SIGTERM to every remaining tracked pid and clears
// active. Best-effort: a pid that has already exited is harmless to
// signal (possys.Kill swallows ESRCH).
func (pg *ProcessGroup) terminate(active map[int]*activeChild) {
	for pid := range active {
		if err := possys.Kill(pid, unix.SIGTERM); err != nil {
			pg.logger.Debug("terminate: sigterm failed", "pid", pid, "err", err)
		}
		delete(active, pid)
	}
}
