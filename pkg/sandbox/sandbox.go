// Package sandbox runs untrusted JavaScript in an isolated goja runtime.
//
// A runtime has no require, no filesystem, no network and no process
// environment. Only the globals passed by the caller and a capturing console
// are visible to the script.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

var (
	// ErrTimeout is returned when a script exceeds its wall-clock budget.
	ErrTimeout = errors.New("script execution timed out")

	// ErrScriptFailed wraps uncaught exceptions and rejected promises.
	ErrScriptFailed = errors.New("script failed")

	// ErrPendingPromise is returned when a script's promise never settles.
	ErrPendingPromise = errors.New("script returned a promise that never settled")
)

// Output is what a script produced.
type Output struct {
	Value  any      `json:"result"`
	Logs   []string `json:"logs"`
	Errors []string `json:"errors"`
}

// NewRuntime creates an empty runtime that is interrupted after timeout or
// when ctx ends. The returned release func must be called once the runtime is
// no longer used.
func NewRuntime(ctx context.Context, timeout time.Duration) (*goja.Runtime, func()) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrTimeout)
	})

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})

	return vm, func() {
		timer.Stop()
		stop()
	}
}

// InterruptCause maps a goja interrupt back to the value that triggered it.
func InterruptCause(err error) (error, bool) {
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		return nil, false
	}

	if cause, ok := interrupted.Value().(error); ok {
		return cause, true
	}

	return ErrTimeout, true
}

// Run executes source as an async function body so top-level return and
// await both work. The returned promise is settled by draining the job queue.
func Run(ctx context.Context, source string, injected map[string]any, timeout time.Duration) (*Output, error) {
	vm, release := NewRuntime(ctx, timeout)
	defer release()

	out := &Output{Logs: []string{}, Errors: []string{}}

	if err := installConsole(vm, out); err != nil {
		return out, err
	}

	for name, value := range injected {
		if err := vm.Set(name, value); err != nil {
			return out, fmt.Errorf("failed to inject %s: %w", name, err)
		}
	}

	value, err := vm.RunString("(async function() {\n" + source + "\n})()")
	if err != nil {
		return out, scriptError(err)
	}

	// RunString drains the job queue before returning.
	if promise, ok := value.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			value = promise.Result()
		case goja.PromiseStateRejected:
			return out, fmt.Errorf("%w: %s", ErrScriptFailed, describe(promise.Result()))
		default:
			return out, ErrPendingPromise
		}
	}

	result, err := exportJSON(vm, value)
	if err != nil {
		return out, err
	}

	out.Value = result

	return out, nil
}

func scriptError(err error) error {
	if cause, ok := InterruptCause(err); ok {
		return cause
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("%w: %s", ErrScriptFailed, describe(exception.Value()))
	}

	return fmt.Errorf("%w: %w", ErrScriptFailed, err)
}

func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "undefined"
	}

	return v.String()
}

func installConsole(vm *goja.Runtime, out *Output) error {
	console := vm.NewObject()

	capture := func(sink *[]string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, formatArg(vm, arg))
			}

			*sink = append(*sink, strings.Join(parts, " "))

			return goja.Undefined()
		}
	}

	for _, name := range []string{"log", "info", "debug"} {
		if err := console.Set(name, capture(&out.Logs)); err != nil {
			return err
		}
	}

	for _, name := range []string{"warn", "error"} {
		if err := console.Set(name, capture(&out.Errors)); err != nil {
			return err
		}
	}

	return vm.Set("console", console)
}

func formatArg(vm *goja.Runtime, arg goja.Value) string {
	if obj, ok := arg.(*goja.Object); ok && obj.ClassName() != "Function" && obj.ClassName() != "Error" {
		if s, err := stringify(vm, arg); err == nil && s != "" {
			return s
		}
	}

	return arg.String()
}

func stringify(vm *goja.Runtime, v goja.Value) (string, error) {
	fn, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return "", errors.New("JSON.stringify unavailable")
	}

	res, err := fn(goja.Undefined(), v)
	if err != nil {
		return "", err
	}

	if goja.IsUndefined(res) {
		return "", nil
	}

	return res.String(), nil
}

// exportJSON converts a script value to plain Go data through JSON so
// functions and host objects never leak out of the runtime.
func exportJSON(vm *goja.Runtime, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	s, err := stringify(vm, v)
	if err != nil {
		return nil, scriptError(err)
	}

	if s == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewBufferString(s))
	dec.UseNumber()

	var result any
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode script result: %w", err)
	}

	return result, nil
}
