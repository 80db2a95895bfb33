//go:build linux || darwin

// Package possys wraps the handful of POSIX syscalls the supervision
// runtime needs — setpgid, kill, wait4, getpid — behind small
// errno-checked functions, the same seam msantos/goreap and the pebble
// reaper use to keep raw unix calls out of their supervision logic.
package possys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Setpgid places pid into process group pgid. The root process calls it
// once on itself (Setpgid(0, 0)) to make itself the leader of its own
// group; spawned children join that group through their SysProcAttr
// instead of a parent-side call.
func Setpgid(pid, pgid int) error {
	if err := unix.Setpgid(pid, pgid); err != nil {
		return fmt.Errorf("setpgid(%d, %d): %w", pid, pgid, err)
	}
	return nil
}

// Kill sends sig to pid. ESRCH (no such process) is swallowed: sending a
// signal to an already-reaped pid is harmless and expected on the
// defensive post-exit SIGTERM path.
func Kill(pid int, sig unix.Signal) error {
	err := unix.Kill(pid, sig)
	if err == nil || err == unix.ESRCH {
		return nil
	}
	return fmt.Errorf("kill(%d, %v): %w", pid, sig, err)
}

// WaitResult is the decoded outcome of a Wait4 call.
type WaitResult struct {
	// PID is the pid that changed state.
	PID int
	// Exited is true if the child terminated normally (via exit or return
	// from main). ExitStatus is meaningful only when Exited is true.
	Exited bool
	// ExitStatus is the exit code, when Exited is true.
	ExitStatus int
	// Signaled is true if the child was terminated by a signal.
	Signaled bool
	// Signal is the terminating signal, when Signaled is true.
	Signal unix.Signal
}

// Wait4 waits for a state change in any child process whose process group
// id equals pgid, by passing -pgid to wait4 (the negative-pgid convention
// from waitpid(2)), exactly the group-wide wait spec section 4.6 calls for.
func Wait4(pgid int, options int) (WaitResult, error) {
	var status unix.WaitStatus
	pid, err := unix.Wait4(-pgid, &status, options, nil)
	if err != nil {
		return WaitResult{}, fmt.Errorf("wait4(-%d): %w", pgid, err)
	}
	return WaitResult{
		PID:        pid,
		Exited:     status.Exited(),
		ExitStatus: status.ExitStatus(),
		Signaled:   status.Signaled(),
		Signal:     status.Signal(),
	}, nil
}

// Getpid returns the calling process's pid.
func Getpid() int {
	return unix.Getpid()
}
