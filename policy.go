package supertree

import (
	"fmt"
	"time"
)

// RestartPolicy determines whether and how many times a child is restarted
// after it exits.
type RestartPolicy int

const (
	// RestartAlways restarts the child unconditionally, every time it exits.
	// This is the default.
	RestartAlways RestartPolicy = iota

	// RestartOnce restarts the child exactly once. A second exit gives up
	// permanently.
	RestartOnce

	// RestartNever never restarts the child; the first exit is final.
	RestartNever
)

// String returns the string representation of a RestartPolicy.
func (p RestartPolicy) String() string {
	switch p {
	case RestartAlways:
		return "Always"
	case RestartOnce:
		return "Once"
	case RestartNever:
		return "Never"
	default:
		return "Unknown"
	}
}

// BackoffPolicy describes the retry cadence used to compute the delay
// before restarting a failed child. The delay grows with how recently the
// child last died and collapses back to MinDelay once the child has run
// cleanly for longer than ResetAfter.
type BackoffPolicy struct {
	// MinDelay is the floor delay, used both for the first restart attempt
	// and after a stable run longer than ResetAfter.
	MinDelay time.Duration

	// MaxDelay is the ceiling delay; the computed delay is clamped to it.
	MaxDelay time.Duration

	// ResetAfter is how long a child must run before its next restart delay
	// resets to MinDelay instead of staying at MaxDelay.
	ResetAfter time.Duration

	// Multiplier scales the previous gap between restarts to produce the
	// next candidate delay. Must be greater than 1.
	Multiplier float64
}

// DefaultBackoffPolicy returns the package default: 50ms / 60s / 120s / 1.2.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MinDelay:   50 * time.Millisecond,
		MaxDelay:   60 * time.Second,
		ResetAfter: 120 * time.Second,
		Multiplier: 1.2,
	}
}

// NewBackoffPolicy validates and returns a BackoffPolicy. It returns
// ErrInvalidBackoffPolicy if 0 < MinDelay < MaxDelay < ResetAfter or
// Multiplier > 1 does not hold.
func NewBackoffPolicy(minDelay, maxDelay, resetAfter time.Duration, multiplier float64) (BackoffPolicy, error) {
	p := BackoffPolicy{
		MinDelay:   minDelay,
		MaxDelay:   maxDelay,
		ResetAfter: resetAfter,
		Multiplier: multiplier,
	}
	if err := p.validate(); err != nil {
		return BackoffPolicy{}, err
	}
	return p, nil
}

func (p BackoffPolicy) validate() error {
	if p.MinDelay <= 0 {
		return fmt.Errorf("%w: min_delay must be > 0", ErrInvalidBackoffPolicy)
	}
	if p.MaxDelay <= p.MinDelay {
		return fmt.Errorf("%w: max_delay must be > min_delay", ErrInvalidBackoffPolicy)
	}
	if p.ResetAfter <= p.MaxDelay {
		return fmt.Errorf("%w: reset_after must be > max_delay", ErrInvalidBackoffPolicy)
	}
	if p.Multiplier <= 1.0 {
		return fmt.Errorf("%w: multiplier must be > 1.0", ErrInvalidBackoffPolicy)
	}
	return nil
}
