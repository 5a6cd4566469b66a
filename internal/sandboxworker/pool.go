// Package sandboxworker runs source transpilation inside isolated worker
// subprocesses instead of the caller's own process, trading the speed of
// internal/transpile's InProcessTranspiler for isolation: a worker that
// hangs or blows its memory limit only takes itself down.
//
// Adapted from the teacher's internal/cwl/sandbox package, which pools
// pre-forked goja workers for CWL expression evaluation over a
// request/response-per-line JSON protocol on stdin/stdout. Pool here plays
// the same role but speaks a Job/Result pair instead of
// sandbox.Request/Response, and RunWorker transpiles source through a
// user-supplied script/entrypoint instead of evaluating a CWL expression.
package sandboxworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	ErrTimeout       = errors.New("sandboxworker: transpile timed out")
	ErrWorkerCrashed = errors.New("sandboxworker: worker crashed")
	ErrPoolExhausted = errors.New("sandboxworker: no available workers")
	ErrPoolClosed    = errors.New("sandboxworker: pool is closed")
)

// Config configures the worker pool.
type Config struct {
	// WorkerCount is the number of pre-forked worker processes.
	WorkerCount int `mapstructure:"worker_count"`

	// Timeout bounds a single Compile call.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxMemoryMB is the memory limit applied inside each worker via rlimit.
	MaxMemoryMB int `mapstructure:"max_memory_mb"`

	// WorkerBinary is the executable re-invoked with --sandbox-worker to
	// become a worker. If empty, the pool re-execs os.Args[0].
	WorkerBinary string `mapstructure:"worker_binary"`

	// Script is the JavaScript source loaded into each worker's VM; it must
	// define a global function named Entrypoint, matching
	// transpile.InProcessTranspiler's contract.
	Script     string `mapstructure:"script"`
	Entrypoint string `mapstructure:"entrypoint"`
}

// DefaultConfig returns sensible defaults; Script/Entrypoint still need
// to be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		Timeout:     5 * time.Second,
		MaxMemoryMB: 128,
		Entrypoint:  "Entrypoint",
	}
}

// Job is sent to a worker process.
type Job struct {
	Source string `json:"source"`
}

// Result is returned from a worker process.
type Result struct {
	Compiled string `json:"compiled,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Pool manages a set of pre-forked worker subprocesses and implements
// transpile.Transpiler by round-robining Compile calls across them.
type Pool struct {
	config  Config
	workers chan *worker
	mu      sync.Mutex
	closed  bool
}

type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	enc    *json.Encoder
	dec    *json.Decoder
}

// NewPool pre-forks cfg.WorkerCount workers and returns a ready Pool.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	p := &Pool{
		config:  cfg,
		workers: make(chan *worker, cfg.WorkerCount),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		w, err := p.startWorker()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("sandboxworker: start worker %d: %w", i, err)
		}
		p.workers <- w
	}

	return p, nil
}

func (p *Pool) startWorker() (*worker, error) {
	binary := p.config.WorkerBinary
	if binary == "" {
		binary = os.Args[0]
	}

	cmd := exec.Command(binary, "--sandbox-worker")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SANDBOXWORKER_MEMORY_MB=%d", p.config.MaxMemoryMB),
		fmt.Sprintf("SANDBOXWORKER_SCRIPT=%s", p.config.Script),
		fmt.Sprintf("SANDBOXWORKER_ENTRYPOINT=%s", p.config.Entrypoint),
		fmt.Sprintf("SANDBOXWORKER_TIMEOUT_SEC=%d", int(p.timeout().Seconds())),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, err
	}

	return &worker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(stdout),
	}, nil
}

// Compile implements transpile.Transpiler by sending source to a pooled
// worker and waiting for its response, subject to the pool's timeout.
//
// This method takes no context; transpile.Registry.Compile's caller-facing
// ctx is not threaded through to avoid abandoning a worker mid-request on
// cancellation — the pool's own Timeout governs every call uniformly, the
// same tradeoff the teacher's Pool.Evaluate makes for CWL expressions.
func (p *Pool) Compile(source string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout())
	defer cancel()
	return p.compile(ctx, source)
}

func (p *Pool) timeout() time.Duration {
	if p.config.Timeout <= 0 {
		return 5 * time.Second
	}
	return p.config.Timeout
}

func (p *Pool) compile(ctx context.Context, source string) (string, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "", ErrPoolClosed
	}

	var w *worker
	select {
	case w = <-p.workers:
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", ErrPoolExhausted
	}

	// killed marks a worker this call had to kill; it is reaped and replaced
	// instead of being returned to the pool.
	killed := false
	defer func() {
		if killed || w.cmd.ProcessState != nil {
			if w.cmd.ProcessState == nil {
				w.cmd.Wait()
			}
			if fresh, err := p.startWorker(); err == nil {
				p.workers <- fresh
			}
			return
		}
		p.workers <- w
	}()

	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)

	go func() {
		if err := w.enc.Encode(Job{Source: source}); err != nil {
			errCh <- fmt.Errorf("sandboxworker: send job: %w", err)
			return
		}
		var res Result
		if err := w.dec.Decode(&res); err != nil {
			errCh <- fmt.Errorf("sandboxworker: read result: %w", err)
			return
		}
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		if res.Error != "" {
			return "", errors.New(res.Error)
		}
		return res.Compiled, nil

	case err := <-errCh:
		w.cmd.Process.Kill()
		killed = true
		return "", err

	case <-ctx.Done():
		w.cmd.Process.Kill()
		killed = true
		return "", ErrTimeout
	}
}

// Close terminates every worker and releases pool resources.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.workers)
	for w := range p.workers {
		w.stdin.Close()
		if w.cmd.Process != nil {
			w.cmd.Process.Kill()
		}
		w.cmd.Wait()
	}

	return nil
}
