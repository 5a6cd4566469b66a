//go:build linux

package sandboxworker

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// applyResourceLimits sets OS-level resource constraints on Linux, mirroring
// the teacher's internal/cwl/sandbox worker_unix.go: an address-space cap
// from the environment, and a hard ban on forking further children.
func applyResourceLimits() {
	if memStr := os.Getenv("SANDBOXWORKER_MEMORY_MB"); memStr != "" {
		if memMB, err := strconv.ParseInt(memStr, 10, 64); err == nil && memMB > 0 {
			memBytes := uint64(memMB * 1024 * 1024)
			rLimit := unix.Rlimit{Cur: memBytes, Max: memBytes}
			unix.Setrlimit(unix.RLIMIT_AS, &rLimit)
		}
	}

	noProcs := unix.Rlimit{Cur: 0, Max: 0}
	unix.Setrlimit(unix.RLIMIT_NPROC, &noProcs)

	noFiles := unix.Rlimit{Cur: 0, Max: 0}
	unix.Setrlimit(unix.RLIMIT_FSIZE, &noFiles)
}
