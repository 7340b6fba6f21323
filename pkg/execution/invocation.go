package execution

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/dukex/querygate/pkg/sandbox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidInvocation classifies document-store invocations that cannot run.
var ErrInvalidInvocation = errors.New("invalid invocation")

// argumentTimeout bounds the evaluation of invocation arguments.
const argumentTimeout = 2 * time.Second

// InvocationError describes why an invocation was rejected.
type InvocationError struct {
	Message string
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func (e *InvocationError) Is(target error) bool {
	return target == ErrInvalidInvocation
}

var invocationPattern = regexp.MustCompile(`^\s*(?:db\.)?([A-Za-z_][A-Za-z0-9_-]*)\.([A-Za-z]+)\(([\s\S]*)\)\s*;?\s*$`)

type methodSpec struct {
	read    bool
	minArgs int
	maxArgs int
}

var collectionMethods = map[string]methodSpec{
	"find":           {read: true, minArgs: 0, maxArgs: 2},
	"findOne":        {read: true, minArgs: 0, maxArgs: 2},
	"aggregate":      {read: true, minArgs: 1, maxArgs: 1},
	"countDocuments": {read: true, minArgs: 0, maxArgs: 1},
	"insertOne":      {minArgs: 1, maxArgs: 1},
	"insertMany":     {minArgs: 1, maxArgs: 1},
	"updateOne":      {minArgs: 2, maxArgs: 3},
	"updateMany":     {minArgs: 2, maxArgs: 3},
	"replaceOne":     {minArgs: 2, maxArgs: 3},
	"deleteOne":      {minArgs: 1, maxArgs: 1},
	"deleteMany":     {minArgs: 1, maxArgs: 1},
}

// Invocation is a parsed `<collection>.<method>(<args>)` call.
type Invocation struct {
	Collection string
	Method     string
	Args       []any
}

// IsRead reports whether the method is read-shaped.
func (i *Invocation) IsRead() bool {
	return collectionMethods[i.Method].read
}

// ParseInvocation validates the shape and method of an invocation and
// evaluates its arguments in an isolated runtime.
func ParseInvocation(ctx context.Context, input string) (*Invocation, error) {
	m := invocationPattern.FindStringSubmatch(input)
	if m == nil {
		return nil, &InvocationError{Message: "invocation must have the form <collection>.<method>(<args>)"}
	}

	collection, method, rawArgs := m[1], m[2], m[3]

	spec, ok := collectionMethods[method]
	if !ok {
		return nil, &InvocationError{Message: fmt.Sprintf("method %s not supported on collection", method)}
	}

	args, err := evaluateArgs(ctx, rawArgs)
	if err != nil {
		return nil, &InvocationError{Message: "failed to parse arguments", Err: err}
	}

	if len(args) < spec.minArgs || len(args) > spec.maxArgs {
		return nil, &InvocationError{
			Message: fmt.Sprintf("%s expects between %d and %d arguments, got %d", method, spec.minArgs, spec.maxArgs, len(args)),
		}
	}

	return &Invocation{Collection: collection, Method: method, Args: args}, nil
}

func evaluateArgs(ctx context.Context, raw string) (args []any, err error) {
	vm, release := sandbox.NewRuntime(ctx, argumentTimeout)
	defer release()

	if err := installShellHelpers(vm); err != nil {
		return nil, err
	}

	value, err := vm.RunString("[" + raw + "\n]")
	if err != nil {
		if cause, ok := sandbox.InterruptCause(err); ok {
			return nil, cause
		}

		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unsupported argument: %v", r)
		}
	}()

	list, ok := toBSON(vm, value).(bson.A)
	if !ok {
		return nil, errors.New("arguments did not evaluate to a list")
	}

	return list, nil
}

func installShellHelpers(vm *goja.Runtime) error {
	objectID := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(primitive.NewObjectID())
		}

		oid, err := primitive.ObjectIDFromHex(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("invalid ObjectId: %s", call.Argument(0).String()))
		}

		return vm.ToValue(oid)
	}

	isoDate := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue(time.Now().UTC())
		}

		t, err := parseISODate(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("invalid ISODate: %s", call.Argument(0).String()))
		}

		return vm.ToValue(t)
	}

	if err := vm.Set("ObjectId", objectID); err != nil {
		return err
	}

	return vm.Set("ISODate", isoDate)
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// toBSON converts a script value into BSON-ready Go values. Objects keep
// their key order as bson.D.
func toBSON(vm *goja.Runtime, v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	switch exported := v.Export().(type) {
	case primitive.ObjectID, time.Time:
		return exported
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}

	switch obj.ClassName() {
	case "Array":
		length := int(obj.Get("length").ToInteger())
		list := make(bson.A, 0, length)

		for i := 0; i < length; i++ {
			list = append(list, toBSON(vm, obj.Get(strconv.Itoa(i))))
		}

		return list
	case "RegExp":
		return primitive.Regex{Pattern: obj.Get("source").String(), Options: obj.Get("flags").String()}
	case "Function":
		panic("functions are not allowed in arguments")
	}

	doc := bson.D{}
	for _, key := range obj.Keys() {
		doc = append(doc, bson.E{Key: key, Value: toBSON(vm, obj.Get(key))})
	}

	return doc
}
