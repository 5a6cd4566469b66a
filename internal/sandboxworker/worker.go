package sandboxworker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

// RunWorker is the main loop for a worker subprocess, invoked when the
// binary is re-exec'd with --sandbox-worker. It reads its script and
// entrypoint from the environment (set by Pool.startWorker), decodes one
// Job per line from stdin, and encodes one Result per line to stdout,
// rebuilding the VM between jobs so state never leaks across callers.
func RunWorker() {
	applyResourceLimits()

	script := os.Getenv("SANDBOXWORKER_SCRIPT")
	entrypoint := os.Getenv("SANDBOXWORKER_ENTRYPOINT")
	if entrypoint == "" {
		entrypoint = "Entrypoint"
	}
	timeout := 10 * time.Second
	if s := os.Getenv("SANDBOXWORKER_TIMEOUT_SEC"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	for {
		var job Job
		if err := dec.Decode(&job); err != nil {
			// Parent closed stdin; exit cleanly.
			return
		}

		res := evaluate(script, entrypoint, job, timeout)
		if err := enc.Encode(res); err != nil {
			return
		}
	}
}

func evaluate(script, entrypoint string, job Job, timeout time.Duration) Result {
	vm := goja.New()

	go func() {
		time.Sleep(timeout)
		vm.Interrupt("sandboxworker: execution timeout")
	}()

	defer func() {
		if r := recover(); r != nil {
			// Swallow panics from the VM; a crashed worker is replaced by
			// the pool on its next Compile call.
		}
	}()

	if _, err := vm.RunString(script); err != nil {
		return Result{Error: fmt.Sprintf("load script: %v", err)}
	}

	entry, ok := goja.AssertFunction(vm.Get(entrypoint))
	if !ok {
		return Result{Error: fmt.Sprintf("%s is not a function", entrypoint)}
	}

	v, err := entry(goja.Undefined(), vm.ToValue(job.Source))
	if err != nil {
		return Result{Error: fmt.Sprintf("transpile error: %v", err)}
	}

	return Result{Compiled: v.String()}
}
