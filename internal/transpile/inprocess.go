package transpile

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// InProcessTranspiler runs a transpile function written in JavaScript inside
// a goja VM in the caller's process. It is fast but trades away isolation,
// so it should only be used for trusted source — adapted from the teacher's
// InProcessEvaluator in internal/cwl/sandbox/evaluator.go, which makes the
// same tradeoff for expression evaluation.
//
// The supplied script must define a global function named Entrypoint that
// takes the source string and returns the compiled string; this mirrors how
// real babel/coffee-script builds expose a single transform(source) call.
type InProcessTranspiler struct {
	script     string
	entrypoint string
	timeout    time.Duration
}

// NewInProcessTranspiler builds a transpiler that evaluates script once per
// Compile call and invokes the function named entrypoint with the source
// text, aborting if it runs longer than timeout.
func NewInProcessTranspiler(script, entrypoint string, timeout time.Duration) *InProcessTranspiler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InProcessTranspiler{script: script, entrypoint: entrypoint, timeout: timeout}
}

// Compile implements Transpiler.
func (t *InProcessTranspiler) Compile(source string) (string, error) {
	vm := goja.New()
	if _, err := vm.RunString(t.script); err != nil {
		return "", fmt.Errorf("inprocess transpiler: load script: %w", err)
	}

	entry, ok := goja.AssertFunction(vm.Get(t.entrypoint))
	if !ok {
		return "", fmt.Errorf("inprocess transpiler: %s is not a function", t.entrypoint)
	}

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("inprocess transpiler: panic: %v", r)}
			}
		}()
		v, err := entry(goja.Undefined(), vm.ToValue(source))
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		resultCh <- result{value: v.String()}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-ctx.Done():
		vm.Interrupt("transpile timeout")
		return "", fmt.Errorf("inprocess transpiler: timed out after %s", t.timeout)
	}
}
