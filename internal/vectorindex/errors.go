package vectorindex

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrCorrupt      = errors.New("vectorindex: corrupt index data")
	ErrDimMismatch  = errors.New("vectorindex: vector dimension mismatch")
	ErrVectorCount  = errors.New("vectorindex: embedder returned wrong number of vectors")
	ErrEmptyVectors = errors.New("vectorindex: embedder returned an empty vector")
)

// Error wraps errors with operation context.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vectorindex.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
