package supertree

import "errors"

var (
	// ErrInvalidBackoffPolicy is returned when a BackoffPolicy violates its
	// invariants (0 < MinDelay < MaxDelay < ResetAfter, Multiplier > 1).
	ErrInvalidBackoffPolicy = errors.New("invalid backoff policy")

	// ErrTreeAlreadyStarted is returned by Start if called more than once on
	// the same Tree. Dynamic topology mutation after Start is out of scope.
	ErrTreeAlreadyStarted = errors.New("tree already started")

	// ErrNoSuchChild is returned when a re-exec path references a child
	// index that does not exist in the reconstructed tree.
	ErrNoSuchChild = errors.New("no such child in tree")

	// ErrForkFailed is returned when spawning a child process fails.
	ErrForkFailed = errors.New("failed to spawn child process")

	// ErrSetpgidFailed is returned when placing a process into its group fails.
	ErrSetpgidFailed = errors.New("failed to set process group")

	// ErrWaitFailed is returned when waiting on the process group is lost,
	// i.e. waitpid itself errors rather than reporting a child state change.
	ErrWaitFailed = errors.New("lost observability of process group")
)
