// Package coordinator implements the Lifecycle Coordinator (spec.md §4.6):
// the central state machine that multiplexes a single invocation's timer,
// stdout, stderr, stdin, and child-exit/error sources into exactly one
// terminal HTTP response outcome.
//
// Grounded on spec.md §5's own suggested shape: "a single per-request event
// loop that consumes a merged event stream (tagged union)". One goroutine
// owns the Status record for the lifetime of an invocation; every other
// source (readers, the stdin pump, the exit waiter, the timer) only ever
// pushes a tagged event onto a shared channel — it never touches Status
// directly. This mirrors how the teacher's executor package keeps a
// process's result channel single-writer even though stdout, stderr, and
// Wait race concurrently.
package coordinator

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brc-tools/svcrun/internal/spawn"
	"github.com/brc-tools/svcrun/internal/svcerr"
	"github.com/brc-tools/svcrun/internal/treekill"
)

// Logger is the minimal logging sink the coordinator writes diagnostic
// lines to. Satisfied by *log.Logger and service.NopLogger.
type Logger interface {
	Printf(format string, args ...interface{})
}

// ResponseWriter is the response half of the middleware contract (spec.md
// §6): accepts body bytes, can be ended, and reports whether it already
// has been.
type ResponseWriter interface {
	Write(chunk []byte) error
	SetHeader(key, value string)
	End() error
	Finished() bool
}

// StderrHandler interprets the child's stderr stream as an out-of-band
// control channel, per spec.md §6: "the handler receives (chunk, status,
// log, response) and may write log lines, set response headers, toggle
// checkingRegistry, or force termination." It is an external collaborator;
// this package only defines the seam it plugs into.
type StderrHandler interface {
	HandleStderr(chunk []byte, ctl *Control)
}

// Status is the per-invocation state machine variable (spec.md §3). Every
// field defaults false. All but CheckingRegistry transition false→true at
// most once; CheckingRegistry is set to either value by the stderr handler
// through Control.SetCheckingRegistry.
type Status struct {
	Ended            bool
	Erroring         bool
	CheckingRegistry bool
	StdoutEnded      bool
	ServiceCompleted bool
	VMClosed         bool
	VMError          bool
	StdinError       bool
}

// Control is the handle a StderrHandler uses to act on the invocation it
// was called for: toggle registry-check state, log, set headers, or force
// the single terminator. It exposes only what spec.md §6 grants the stderr
// handler, not the full event loop.
type Control struct {
	inv *invocation
}

// SetCheckingRegistry toggles the flag that defers stdout-end/exit
// completion while the stderr handler is mid missing-module install
// sequence (spec.md §4.6's checkingRegistry).
func (c *Control) SetCheckingRegistry(v bool) { c.inv.status.CheckingRegistry = v }

// CheckingRegistry reports the current value of that flag.
func (c *Control) CheckingRegistry() bool { return c.inv.status.CheckingRegistry }

// Log writes a diagnostic line via the invocation's logger.
func (c *Control) Log(format string, args ...interface{}) { c.inv.log.Printf(format, args...) }

// SetHeader sets a response header. No-op once the response has ended.
func (c *Control) SetHeader(key, value string) {
	if !c.inv.status.Ended {
		c.inv.resp.SetHeader(key, value)
	}
}

// EndResponse lets the stderr handler force termination (spec.md §6,
// "call response.endResponse to force termination"). It is idempotent: the
// underlying terminator fires exactly once regardless of how many sources
// request it.
func (c *Control) EndResponse(result string) { c.inv.endResponse(result) }

// Invocation holds everything one request's event loop needs. Build one
// per request with New, then call Run.
type Invocation struct {
	Child         *spawn.Child
	Timeout       time.Duration
	TimeoutBody   []byte
	StderrHandler StderrHandler
	Response      ResponseWriter
	Log           Logger
	Body          io.Reader

	// RequestID identifies this invocation in log lines; a fresh uuid is
	// generated when empty, mirroring the teacher's per-run id on workflow
	// execution records.
	RequestID string
}

// invocation is the mutable, single-goroutine-owned runtime state backing
// one Invocation.Run call.
type invocation struct {
	status    Status
	child     *spawn.Child
	resp      ResponseWriter
	log       Logger
	onDoneMu  sync.Once
	done      chan struct{}
	result    string
	timer     *time.Timer
	timerBody []byte
	requestID string
	startedAt time.Time
}

type eventKind int

const (
	evTimer eventKind = iota
	evStdoutData
	evStdoutEnd
	evStderrData
	evStdinError
	evChildError
	evChildExit
)

type event struct {
	kind eventKind
	data []byte
	err  error
	exit spawn.ExitStatus
}

// Run drains inv's event sources until the single terminator fires and
// returns the result string passed to endResponse, which names the path
// that ended the invocation ("stdout ended", "timeout", "child error", or
// the string a StderrHandler passes to EndResponse); there is no single
// fixed result string. ctx cancellation only affects the stdin pump; the
// invocation's own timer is the sole cancellation/timeout source per
// spec.md §5.
func Run(ctx context.Context, inv Invocation) string {
	if inv.Log == nil {
		inv.Log = discardLogger{}
	}
	requestID := inv.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	iv := &invocation{
		child:     inv.Child,
		resp:      inv.Response,
		log:       inv.Log,
		done:      make(chan struct{}),
		requestID: requestID,
		startedAt: time.Now(),
	}

	events := make(chan event, 64)
	var producers sync.WaitGroup

	// stdio tracks only the stdout/stderr pump goroutines. os/exec's Wait
	// closes both pipes once the process exits; calling it while a Read is
	// still draining the final buffered chunk can turn a clean EOF into
	// "file already closed" and drop the child's last bytes (exactly the
	// error stack the coordinator exists to preserve). The exit waiter
	// below blocks on stdio before calling Wait, so the pumps always see a
	// real EOF.
	var stdio sync.WaitGroup
	stdio.Add(2)

	// stderrDone closes once every stderr chunk has been queued. The stdout
	// pump holds back its end event until then, so stderr control messages
	// reach the handler before stdout-end can end the response.
	stderrDone := make(chan struct{})

	producers.Add(1)
	go func() {
		defer producers.Done()
		defer stdio.Done()
		pumpReader(inv.Child.Stdout, events, evStdoutData, -1)
		<-stderrDone
		events <- event{kind: evStdoutEnd}
	}()

	producers.Add(1)
	go func() {
		defer producers.Done()
		defer stdio.Done()
		defer close(stderrDone)
		pumpReader(inv.Child.Stderr, events, evStderrData, -1)
	}()

	producers.Add(1)
	go func() {
		defer producers.Done()
		if err := spawn.PipeStdin(inv.Child, inv.Body); err != nil {
			select {
			case events <- event{kind: evStdinError, err: err}:
			case <-iv.done:
			}
		}
	}()

	producers.Add(1)
	go func() {
		defer producers.Done()
		stdio.Wait()
		status, err := spawn.Wait(inv.Child)
		ev := event{kind: evChildExit, exit: status}
		if err != nil {
			ev = event{kind: evChildError, err: err}
		}
		select {
		case events <- ev:
		case <-iv.done:
		}
	}()

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	iv.timerBody = inv.TimeoutBody
	iv.timer = time.AfterFunc(timeout, func() {
		select {
		case events <- event{kind: evTimer}:
		case <-iv.done:
		}
	})

	go func() {
		producers.Wait()
		close(events)
	}()

	ctl := &Control{inv: iv}
	stderrHandler := inv.StderrHandler

	for !iv.status.ServiceCompleted {
		select {
		case ev, ok := <-events:
			if !ok {
				// All producers finished without anyone calling
				// endResponse (shouldn't happen in a well-formed child
				// protocol, but don't hang forever).
				iv.endResponse("event sources exhausted")
				break
			}
			handle(iv, ev, stderrHandler, ctl)
		case <-ctx.Done():
			if !iv.status.Ended {
				iv.status.Ended = true
				treekill.Kill(inv.Child.Pid())
				iv.endResponse("context canceled")
			}
		}
	}

	close(iv.done)
	go func() {
		for range events {
		}
	}()

	return iv.result
}

func handle(iv *invocation, ev event, stderrHandler StderrHandler, ctl *Control) {
	s := &iv.status
	switch ev.kind {
	case evTimer:
		if !s.ServiceCompleted && !s.Ended && !s.CheckingRegistry {
			s.Ended = true
			if len(iv.timerBody) > 0 {
				_ = iv.resp.Write(iv.timerBody)
			}
			if err := treekill.Kill(iv.child.Pid()); err != nil {
				iv.log.Printf("coordinator: tree-kill on timeout: %v", err)
			}
			timeoutErr := &svcerr.TimeoutError{Message: string(iv.timerBody)}
			iv.log.Printf("coordinator: %v", timeoutErr)
			iv.endResponse("timeout")
		}

	case evStdoutData:
		if !s.Ended && !iv.resp.Finished() {
			if err := iv.resp.Write(ev.data); err != nil {
				iv.log.Printf("coordinator: write stdout chunk: %v", err)
			}
		}

	case evStdoutEnd:
		s.StdoutEnded = true
		if !s.CheckingRegistry && !s.Ended && !s.Erroring {
			s.Ended = true
			iv.endResponse("stdout ended")
		} else if s.VMClosed && !s.Ended {
			s.Ended = true
			iv.endResponse("stdout ended after vm closed")
		}

	case evStderrData:
		if stderrHandler != nil {
			stderrHandler.HandleStderr(ev.data, ctl)
		}

	case evStdinError:
		s.StdinError = true
		iv.log.Printf("coordinator: stdin error (non-fatal): %v", ev.err)

	case evChildError:
		s.VMError = true
		if !s.Ended {
			s.Ended = true
			_ = iv.resp.Write([]byte(ev.err.Error()))
			iv.endResponse("child error")
		}

	case evChildExit:
		s.VMClosed = true
		if !s.CheckingRegistry && !s.Ended && !s.StdoutEnded {
			if ev.exit.Signaled || ev.exit.Code != 0 {
				s.Erroring = true
				s.VMError = true
				runtimeErr := &svcerr.RuntimeChildError{ExitCode: ev.exit.Code, Signaled: ev.exit.Signaled}
				iv.log.Printf("coordinator: %v", runtimeErr)
			}
			// Do not end here: stdout must drain first (spec.md §4.6).
		}
		if s.StdoutEnded && !s.Ended {
			s.Ended = true
			iv.endResponse("child exited after stdout drained")
		}
	}
}

// endResponse is the single terminator (spec.md §4.6): cancels the timer,
// marks the invocation complete, ends the response, and records the
// result. sync.Once guarantees invariant 1 (exactly once) even if a caller
// bug races two completion paths.
func (iv *invocation) endResponse(result string) {
	iv.onDoneMu.Do(func() {
		if iv.timer != nil {
			iv.timer.Stop()
		}
		iv.status.ServiceCompleted = true
		if err := iv.resp.End(); err != nil {
			iv.log.Printf("coordinator: end response: %v", err)
		}
		iv.result = result
		iv.log.Printf("coordinator: invocation %s completed in %s: %s",
			iv.requestID, time.Since(iv.startedAt), result)
	})
}

// pumpReader reads chunks from r, emitting dataKind events for each
// non-empty read and endKind (if >= 0) once on EOF/error. Run passes -1 for
// both stdout and stderr: stderr has no "end" event in the table, and Run
// sends stdout's end event itself once stderr has been drained.
func pumpReader(r io.Reader, events chan<- event, dataKind eventKind, endKind eventKind) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			events <- event{kind: dataKind, data: chunk}
		}
		if err != nil {
			if endKind >= 0 {
				events <- event{kind: endKind}
			}
			return
		}
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}
