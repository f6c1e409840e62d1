package reactor

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrWriteInDerivation is returned when an observable is written while a
// derivation is evaluating. Derivations must be pure functions of their
// dependencies.
var ErrWriteInDerivation = errors.New("reactor: observable written during derivation evaluation")

// ErrOutsideBatch is returned by writes outside Batch/Tx when the runtime
// was created with WithStrict(true).
var ErrOutsideBatch = errors.New("reactor: observable written outside a batch in strict mode")

// ErrCycle is returned when a derivation reads itself, directly or through
// other derivations.
var ErrCycle = errors.New("reactor: cycle detected in derivation graph")

// ErrDisposed is returned when reading a disposed derivation or writing a
// disposed observable.
var ErrDisposed = errors.New("reactor: node disposed")

// ErrFlushLimit is reported when a flush exceeds its pass or run budget.
// This usually means reactions keep re-triggering each other.
var ErrFlushLimit = errors.New("reactor: flush budget exceeded")

// ErrLoopClosed is returned when posting to a closed Loop.
var ErrLoopClosed = errors.New("reactor: loop closed")

// ErrLoopFull is returned when a Loop's mailbox cannot accept more work.
var ErrLoopFull = errors.New("reactor: loop mailbox full")

// ErrPoolClosed is returned when submitting to a closed Pool.
var ErrPoolClosed = errors.New("reactor: executor pool closed")

// EvalError is returned (for derivations) or reported (for reactions) when
// a node's evaluation fails.
type EvalError struct {
	Node NodeID
	Name string
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	name := e.Name
	if name == "" {
		name = "#" + e.Node.String()
	}
	return fmt.Sprintf("reactor: %s %s: %v", e.Kind, name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking derivation or reaction.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// guard runs fn, converting a panic into a *PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// ErrorHandler receives errors the engine cannot return to a caller, such
// as failing reactions or exceeded flush budgets.
type ErrorHandler func(err error)
