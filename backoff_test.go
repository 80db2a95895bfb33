package supertree

import (
	"testing"
	"time"
)

// fakeRestartable is a minimal restartable for exercising backoff in
// isolation, without needing a real Worker or Process.
type fakeRestartable struct {
	restart RestartPolicy
	backoff BackoffPolicy
}

func (f fakeRestartable) RestartPolicy() RestartPolicy { return f.restart }
func (f fakeRestartable) BackoffPolicy() BackoffPolicy { return f.backoff }

func testPolicy() BackoffPolicy {
	p, err := NewBackoffPolicy(10*time.Millisecond, 100*time.Millisecond, 200*time.Millisecond, 2.0)
	if err != nil {
		panic(err)
	}
	return p
}

func TestBackoffFirstDecisionIsMinDelay(t *testing.T) {
	policy := testPolicy()
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartAlways, backoff: policy})

	d := b.maybeDelay()
	if d.GiveUp {
		t.Fatal("expected first decision to retry, got GiveUp")
	}
	if d.Delay != policy.MinDelay {
		t.Fatalf("first delay = %v, want MinDelay %v", d.Delay, policy.MinDelay)
	}
}

func TestBackoffRestartNeverAlwaysGivesUp(t *testing.T) {
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartNever, backoff: testPolicy()})
	for i := 0; i < 3; i++ {
		d := b.maybeDelay()
		if !d.GiveUp {
			t.Fatalf("iteration %d: expected GiveUp for RestartNever", i)
		}
	}
}

func TestBackoffRestartOnceGivesUpAfterFirst(t *testing.T) {
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartOnce, backoff: testPolicy()})

	first := b.maybeDelay()
	if first.GiveUp {
		t.Fatal("expected first RestartOnce decision to retry")
	}

	second := b.maybeDelay()
	if !second.GiveUp {
		t.Fatal("expected second RestartOnce decision to give up")
	}
}

func TestBackoffClampsToMaxDelay(t *testing.T) {
	policy := testPolicy()
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartAlways, backoff: policy})

	// Force hasActed with a lastAction far enough in the past that the
	// computed candidate would exceed MaxDelay, but not so far that it
	// falls into the ResetAfter branch.
	b.hasActed = true
	b.lastAction = time.Now().Add(-policy.MaxDelay + 10*time.Millisecond)

	d := b.maybeDelay()
	if d.GiveUp {
		t.Fatal("expected retry, got GiveUp")
	}
	if d.Delay > policy.MaxDelay {
		t.Fatalf("delay %v exceeds MaxDelay %v", d.Delay, policy.MaxDelay)
	}
}

func TestBackoffResetsAfterLongQuietPeriod(t *testing.T) {
	policy := testPolicy()
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartAlways, backoff: policy})

	b.hasActed = true
	b.lastAction = time.Now().Add(-policy.ResetAfter - time.Second)

	d := b.maybeDelay()
	if d.GiveUp {
		t.Fatal("expected retry, got GiveUp")
	}
	if d.Delay != policy.MinDelay {
		t.Fatalf("delay after long quiet period = %v, want MinDelay %v", d.Delay, policy.MinDelay)
	}
}

func TestBackoffBetweenMaxAndResetHoldsAtMaxDelay(t *testing.T) {
	policy := testPolicy()
	b := newBackoff[fakeRestartable](fakeRestartable{restart: RestartAlways, backoff: policy})

	mid := policy.MaxDelay + (policy.ResetAfter-policy.MaxDelay)/2
	b.hasActed = true
	b.lastAction = time.Now().Add(-mid)

	d := b.maybeDelay()
	if d.Delay != policy.MaxDelay {
		t.Fatalf("delay in the max..reset window = %v, want MaxDelay %v", d.Delay, policy.MaxDelay)
	}
}
