//go:build !linux && !darwin

package treekill

import "fmt"

// Kill is unsupported on platforms without process-group semantics; callers
// still get an error to log rather than a silent no-op.
func Kill(pid int) error {
	return fmt.Errorf("treekill: process-tree kill not supported on this platform (pid %d)", pid)
}
