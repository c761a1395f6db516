package qa

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a question or document id that failed
	// validation. The concrete error is a *ValidationError.
	ErrInvalidRequest = errors.New("qa: invalid request")

	// ErrUpstreamModel marks a failure of the answer generator or the
	// embedding provider.
	ErrUpstreamModel = errors.New("qa: upstream model failure")

	// ErrEmbedding marks an embedding failure. It matches ErrUpstreamModel.
	ErrEmbedding = fmt.Errorf("qa: embedding failure: %w", ErrUpstreamModel)
)

// ValidationError carries the client-facing validation message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
