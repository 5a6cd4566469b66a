// Package spawn implements the Spawn Controller (spec.md §4.5): resolving
// the executor binary for a service's language and starting it with the
// argv built by internal/arggen, wired for the stdio contract in spec.md §6.
package spawn

import (
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/brc-tools/svcrun/internal/envbuild"
	"github.com/brc-tools/svcrun/internal/language"
	"github.com/brc-tools/svcrun/internal/service"
	"github.com/brc-tools/svcrun/internal/svcerr"
)

// Controller resolves executor binaries and spawns children.
type Controller struct {
	registry *language.Registry
	argv     ArgvGenerator
}

// ArgvGenerator is the subset of arggen.Registry the controller needs,
// kept as an interface so tests can supply a stub without constructing a
// full arggen.Registry.
type ArgvGenerator interface {
	Generate(svc *service.Descriptor, env *envbuild.Env) ([]string, error)
}

// NewController builds a spawn controller backed by registry (executor
// binary lookup) and argv (argument generation).
func NewController(registry *language.Registry, argv ArgvGenerator) *Controller {
	return &Controller{registry: registry, argv: argv}
}

// Child is a started executor process with its standard streams attached.
// One pipe each for Stdin, Stdout and Stderr exists per spec.md §6's stdio
// contract; the coordinator reads Stdout/Stderr and writes to Stdin.
type Child struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Pid returns the child's process ID, used by internal/treekill on timeout.
func (c *Child) Pid() int {
	if c.Cmd.Process == nil {
		return 0
	}
	return c.Cmd.Process.Pid
}

// Spawn resolves the executor binary for svc.Language, generates its argv
// from (svc, env), and starts it. No shell interpolation: the binary and
// its arguments are passed directly to exec, never through "sh -c".
//
// The child is placed in its own process group (Setpgid) so that
// internal/treekill can terminate its entire descendant tree on timeout,
// following the pattern in the pack's process-group executors.
func (s *Controller) Spawn(svc *service.Descriptor, env *envbuild.Env) (*Child, error) {
	binary, _, err := s.registry.Resolve(svc.Language)
	if err != nil {
		return nil, &svcerr.ConfigurationError{Reason: err.Error()}
	}

	argv, err := s.argv.Generate(svc, env)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &svcerr.SpawnError{Binary: binary, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &svcerr.SpawnError{Binary: binary, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &svcerr.SpawnError{Binary: binary, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, &svcerr.SpawnError{Binary: binary, Err: err}
	}

	return &Child{Cmd: cmd, Stdin: stdin, Stdout: stdout, Stderr: stderr}, nil
}

// PipeStdin copies body into child's stdin and closes it, satisfying
// spec.md §4.5: "writes failing with a stdin error transition stdinError=true
// but do not themselves end the response". The returned error, if any, is
// meant to be recorded on the invocation's status, not surfaced directly.
func PipeStdin(child *Child, body io.Reader) error {
	defer child.Stdin.Close()
	if body == nil {
		return nil
	}
	if _, err := io.Copy(child.Stdin, body); err != nil {
		return &svcerr.StdinError{Err: err}
	}
	return nil
}

// ExitStatus classifies a completed child's termination, per spec.md §6's
// exit code contract (0 success, 1 generic error, >1 unknown error, signal
// means killed).
type ExitStatus struct {
	Code     int
	Signaled bool
}

// Wait blocks until the child exits and classifies the result. The caller
// (internal/coordinator) is expected to call this from the event loop's
// child.exit source, typically in its own goroutine feeding a channel.
func Wait(child *Child) (ExitStatus, error) {
	err := child.Cmd.Wait()
	if err == nil {
		return ExitStatus{Code: 0}, nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return ExitStatus{}, fmt.Errorf("spawn: wait: %w", err)
	}

	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if ok && ws.Signaled() {
		return ExitStatus{Signaled: true}, nil
	}
	return ExitStatus{Code: exitErr.ExitCode()}, nil
}
