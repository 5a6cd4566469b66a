//go:build linux || darwin

// Package treekill implements the Process-Tree Terminator (spec.md §4.7):
// on timeout, the child's entire descendant tree must die, not just the
// direct child, because some language executors fork further processes.
//
// Grounded on the process-group kill pattern in
// samgonzalezalberto-script-weaver's Executor.Execute: Setpgid at spawn time
// puts the child in its own process group, so a single kill targeting the
// negative PID reaches every descendant in that group.
package treekill

import (
	"fmt"
	"syscall"
)

// Kill sends SIGKILL to the process group rooted at pid. pid must be the
// PID of a process started with SysProcAttr.Setpgid set, so that pid is
// also its process group ID. Errors are returned for logging, never as a
// reason to delay endResponse (spec.md §4.7: "errors from the kill syscall
// are logged but do not block endResponse").
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("treekill: invalid pid %d", pid)
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("treekill: kill process group %d: %w", pid, err)
	}
	return nil
}
