//go:build !linux

package sandboxworker

// applyResourceLimits is a no-op outside Linux; isolation there relies on
// the pool's own timeout/kill and goja's interrupt mechanism.
func applyResourceLimits() {}
