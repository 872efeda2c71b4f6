package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNilCallback is reported when Create is given a nil callback.
	ErrNilCallback = errors.New("worker callback is nil")

	// ErrWorkerTerminated reports a kick aimed at a worker that has shut down.
	ErrWorkerTerminated = errors.New("worker is terminated")
)

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Worker string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %q: callback panicked: %v", e.Worker, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
