package supertree

import (
	"fmt"
	"log/slog"
)

// node is the tagged union of a Supervisor's children: each entry is
// either a leaf Worker or a child Supervisor (spec's Task = Worker |
// Supervisor). Exactly one field is non-nil.
type node struct {
	worker     Worker
	supervisor *Supervisor
}

// Supervisor is an inner tree node: it owns an ordered list of children
// (workers and child supervisors), partitions them at Start time, and
// becomes a process-group parent over one Watcher (hosting its direct
// workers) plus one OS process per child supervisor.
//
// Supervisors are built with AddWorker/AddSupervisor before the tree is
// started; once Start runs, the topology is fixed (spec non-goal: no
// dynamic topology mutation after start).
type Supervisor struct {
	rootPID int
	path    []int // full path from the true tree root to this node

	children        []node
	supervisorCount int // how many child supervisors have been added so far

	backoffPolicy BackoffPolicy
	restartPolicy RestartPolicy

	logger        *slog.Logger
	eventHandlers []EventHandler
}

// newSupervisor builds a Supervisor at the given path with the given
// inherited defaults. rootPID is filled in later by propagateRootPID once
// the true root's pid is known (it cannot be known at tree-build time
// inside a re-exec'd child, which must match the original root's pid, not
// its own).
func newSupervisor(path []int, logger *slog.Logger, handlers []EventHandler) *Supervisor {
	return &Supervisor{
		path:          path,
		backoffPolicy: DefaultBackoffPolicy(),
		restartPolicy: RestartAlways,
		logger:        logger,
		eventHandlers: handlers,
	}
}

// AddWorker appends a worker as a direct child of this supervisor. All
// direct workers of one supervisor are hosted by a single Watcher.
func (s *Supervisor) AddWorker(w Worker) *Supervisor {
	s.children = append(s.children, node{worker: w})
	return s
}

// AddSupervisor constructs a fresh child Supervisor (seeded with this
// supervisor's logger and event handlers; its root pid is set later by
// propagateRootPID), passes it to f for population, and appends the
// result as a child supervisor. f's return value is what gets attached —
// typically f just chains AddWorker/AddSupervisor calls on the supervisor
// it receives and returns it unchanged.
func (s *Supervisor) AddSupervisor(f func(*Supervisor) *Supervisor) *Supervisor {
	localIndex := s.supervisorCount + 1
	s.supervisorCount++

	childPath := make([]int, len(s.path)+1)
	copy(childPath, s.path)
	childPath[len(s.path)] = localIndex

	child := newSupervisor(childPath, s.logger, s.eventHandlers)
	child = f(child)
	s.children = append(s.children, node{supervisor: child})
	return s
}

// WithBackoffPolicy sets the backoff policy used when this supervisor
// itself is restarted by its parent.
func (s *Supervisor) WithBackoffPolicy(p BackoffPolicy) *Supervisor {
	s.backoffPolicy = p
	return s
}

// WithRestartPolicy sets the restart policy used when this supervisor
// itself is restarted by its parent.
func (s *Supervisor) WithRestartPolicy(p RestartPolicy) *Supervisor {
	s.restartPolicy = p
	return s
}

// RestartPolicy reports the policy governing restarts of this supervisor
// itself (as decided by its parent's ProcessGroup), not of its children.
func (s *Supervisor) RestartPolicy() RestartPolicy { return s.restartPolicy }

// BackoffPolicy reports the backoff policy governing restarts of this
// supervisor itself.
func (s *Supervisor) BackoffPolicy() BackoffPolicy { return s.backoffPolicy }

// Start is the Supervisor's Process implementation: it runs inside the
// process spawned for this supervisor (the true root in the non-nested
// case, or a re-exec'd child otherwise) and simply calls run.
func (s *Supervisor) Start() error {
	return s.run()
}

// run partitions children into direct workers and child supervisors, wraps
// the workers in a single Watcher, and runs a ProcessGroup over the
// Watcher plus every child supervisor. It blocks until the group
// terminates.
func (s *Supervisor) run() error {
	workers := make([]Worker, 0, len(s.children))
	supervisors := make([]*Supervisor, 0, len(s.children))
	for _, c := range s.children {
		if c.worker != nil {
			workers = append(workers, c.worker)
		} else {
			supervisors = append(supervisors, c.supervisor)
		}
	}

	pg := newProcessGroup(s.rootPID, s.path, s.logger, s.eventHandlers)

	watcherPath := appendPath(s.path, 0)
	pg.addProcess(watcherPath, newWatcher(workers, s.logger))
	for _, cs := range supervisors {
		pg.addProcess(cs.path, cs)
	}

	return pg.run()
}

// supervisorChildAt returns the child supervisor whose declaration-order
// local index (1-based, as assigned by AddSupervisor) equals localIndex.
func (s *Supervisor) supervisorChildAt(localIndex int) (*Supervisor, error) {
	count := 0
	for _, c := range s.children {
		if c.supervisor == nil {
			continue
		}
		count++
		if count == localIndex {
			return c.supervisor, nil
		}
	}
	return nil, fmt.Errorf("%w: local index %d among %d supervisor children", ErrNoSuchChild, localIndex, count)
}

// buildWatcher constructs a fresh Watcher over this supervisor's direct
// workers, in declaration order. Used only when locating the node a
// re-exec'd child process is responsible for.
func (s *Supervisor) buildWatcher() *Watcher {
	workers := make([]Worker, 0, len(s.children))
	for _, c := range s.children {
		if c.worker != nil {
			workers = append(workers, c.worker)
		}
	}
	return newWatcher(workers, s.logger)
}

// propagateRootPID sets rootPID on s and every descendant supervisor. It
// is called once per process image: with the spawning process's own pid
// in the true root, or with the value threaded through the re-exec
// environment in every other process.
func propagateRootPID(s *Supervisor, pid int) {
	s.rootPID = pid
	for _, c := range s.children {
		if c.supervisor != nil {
			propagateRootPID(c.supervisor, pid)
		}
	}
}

// locateProcess walks path from root, descending through child supervisors
// for every element but the last. A last element of 0 selects root's own
// Watcher; any other value selects a child supervisor by local index.
func locateProcess(root *Supervisor, path []int) (Process, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNoSuchChild)
	}
	cur := root
	for _, idx := range path[:len(path)-1] {
		next, err := cur.supervisorChildAt(idx)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	last := path[len(path)-1]
	if last == 0 {
		return cur.buildWatcher(), nil
	}
	return cur.supervisorChildAt(last)
}

func appendPath(path []int, last int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = last
	return out
}

var _ Process = (*Supervisor)(nil)
