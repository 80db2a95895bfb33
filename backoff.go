package supertree

import "time"

// restartable is satisfied by anything that reports its own restart and
// backoff policy: Worker, Watcher, and Supervisor all implement it.
type restartable interface {
	RestartPolicy() RestartPolicy
	BackoffPolicy() BackoffPolicy
}

// backoffDecision is the outcome of backoff.maybeDelay: either retry after
// Delay, or GiveUp permanently.
type backoffDecision struct {
	Delay  time.Duration
	GiveUp bool
}

// backoff is the per-child mutable companion tracking the last restart
// instant and computing the next delay from the child's own policy. The
// zero value is ready to use; hasActed distinguishes "never acted" from the
// zero time.Time so the first decision always floors at MinDelay.
type backoff[T restartable] struct {
	inner      T
	lastAction time.Time
	hasActed   bool
}

// newBackoff wraps inner in a fresh backoff with no restart history.
func newBackoff[T restartable](inner T) *backoff[T] {
	return &backoff[T]{inner: inner}
}

// maybeDelay implements the decision in spec section 4.1:
//  1. RestartNever always gives up.
//  2. With no prior action, the candidate delay is MinDelay.
//  3. Otherwise the candidate grows or resets based on how long it has been
//     since the last action, relative to MaxDelay and ResetAfter.
//  4. RestartAlways always retries; RestartOnce retries only the first time.
//
// GiveUp still advances lastAction, so a caller that ignores the decision
// and calls maybeDelay again does not see time stand still.
func (b *backoff[T]) maybeDelay() backoffDecision {
	now := time.Now()
	defer func() {
		b.lastAction = now
		b.hasActed = true
	}()

	restartPolicy := b.inner.RestartPolicy()
	if restartPolicy == RestartNever {
		return backoffDecision{GiveUp: true}
	}

	policy := b.inner.BackoffPolicy()
	delay := policy.MinDelay

	if b.hasActed {
		diff := now.Sub(b.lastAction)
		switch {
		case diff < policy.MaxDelay:
			delay = clampDuration(
				time.Duration(float64(diff)*policy.Multiplier),
				policy.MinDelay,
				policy.MaxDelay,
			)
		case diff > policy.ResetAfter:
			delay = policy.MinDelay
		default:
			delay = policy.MaxDelay
		}
	}

	switch restartPolicy {
	case RestartAlways:
		return backoffDecision{Delay: delay}
	case RestartOnce:
		if !b.hasActed {
			return backoffDecision{Delay: delay}
		}
		return backoffDecision{GiveUp: true}
	default:
		return backoffDecision{GiveUp: true}
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
