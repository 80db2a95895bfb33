package supertree

import "time"

// EventType identifies the kind of lifecycle event a ProcessGroup emits.
type EventType int

const (
	// ChildForked is emitted when a new child process is spawned.
	ChildForked EventType = iota
	// ChildExited is emitted when a child process exits normally.
	ChildExited
	// ChildSignaled is emitted when a child process is killed by a signal.
	ChildSignaled
	// ChildRestarted is emitted once a child process has been re-spawned;
	// its PID is the new process's pid.
	ChildRestarted
	// ChildGaveUp is emitted when a child's backoff policy gives up permanently.
	ChildGaveUp
	// GroupCollapsed is emitted when a ProcessGroup terminates the whole group
	// because a child was killed by a signal. The group is also terminated
	// when a spawn or a wait fails; those paths return an error instead and
	// do not emit this event.
	GroupCollapsed
)

// String returns the string representation of an EventType.
func (t EventType) String() string {
	switch t {
	case ChildForked:
		return "ChildForked"
	case ChildExited:
		return "ChildExited"
	case ChildSignaled:
		return "ChildSignaled"
	case ChildRestarted:
		return "ChildRestarted"
	case ChildGaveUp:
		return "ChildGaveUp"
	case GroupCollapsed:
		return "GroupCollapsed"
	default:
		return "Unknown"
	}
}

// Event represents a single supervision lifecycle event. Events are
// delivered in addition to (not instead of) the structured log lines every
// ProcessGroup emits via its *slog.Logger.
type Event struct {
	// Time is when the event occurred.
	Time time.Time
	// PID is the process id involved, if any.
	PID int
	// Type is the kind of event.
	Type EventType
	// Err is any error associated with the event (e.g. a child's exit error).
	Err error
}

// EventHandler processes supervision events. Handlers are called inline on
// the ProcessGroup's supervising goroutine and should return quickly.
type EventHandler func(e Event)

// emitEvent sends an event to every registered handler, filling in Time if
// the caller left it zero.
func emitEvent(handlers []EventHandler, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, h := range handlers {
		h(e)
	}
}
