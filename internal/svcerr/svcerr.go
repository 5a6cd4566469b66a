// Package svcerr defines the error kinds a service invocation can fail with.
//
// Each kind corresponds to one of the failure modes a client of the
// service-spawning middleware can observe: a bad handler configuration, a
// transpile failure, an oversized argv, a failed spawn, a non-zero child
// exit, a timeout, or a stdin write error. Distinguishing them lets the
// middleware decide what belongs in the HTTP response body and what only
// belongs in the log.
package svcerr

import "fmt"

// ConfigurationError is raised at handler construction or first request
// when the service descriptor is invalid (missing code, unknown language).
// It is never written to the HTTP response; the handler cannot be built.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("service configuration error: %s", e.Reason)
}

// TranspileError wraps a synchronous failure from a registered transpiler.
type TranspileError struct {
	Language string
	Err      error
}

func (e *TranspileError) Error() string {
	return fmt.Sprintf("transpile error (%s): %v", e.Language, e.Err)
}

func (e *TranspileError) Unwrap() error { return e.Err }

// ArgvTooLargeError is raised when the serialized argv exceeds the
// configured or platform limit, before the child is spawned.
type ArgvTooLargeError struct {
	Size  int
	Limit int
}

func (e *ArgvTooLargeError) Error() string {
	return fmt.Sprintf("argv too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// SpawnError wraps a failure to start the child process (missing binary,
// permission denied, and similar os/exec.Start errors).
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// RuntimeChildError records that the child exited with a non-zero code or
// a signal. The diagnostic value is in the child's own stdout/stderr, which
// the coordinator preserves by waiting for stdout to drain before ending
// the response; this error only records the classification.
type RuntimeChildError struct {
	ExitCode int
	Signaled bool
}

func (e *RuntimeChildError) Error() string {
	if e.Signaled {
		return "child process was killed by a signal"
	}
	return fmt.Sprintf("child process exited with code %d", e.ExitCode)
}

// TimeoutError records that the invocation's timer fired before the child
// completed.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// StdinError records a failed write to the child's stdin. It is recorded
// on the invocation's status but is never itself surfaced to the client;
// the child's exit/stdout outcome still governs the response.
type StdinError struct {
	Err error
}

func (e *StdinError) Error() string {
	return fmt.Sprintf("stdin write error: %v", e.Err)
}

func (e *StdinError) Unwrap() error { return e.Err }
