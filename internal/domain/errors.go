package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage means a payload failed schema or adapter validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrAdapterNotFound means no adapter resolved for the given or detected source tag.
	ErrAdapterNotFound = errors.New("adapter not found")
	// ErrSourceFailure marks a single context source fault. Never surfaced to callers.
	ErrSourceFailure = errors.New("context source failure")
	// ErrPersonaNotFound means a requested persona has no definition.
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrAllSourcesFailed means no context source contributed and the baseline retrieval failed too.
	ErrAllSourcesFailed = errors.New("all context sources failed")
)

// InvalidMessageError names the missing or malformed payload field.
type InvalidMessageError struct {
	Field  string
	Reason string
	Source string // adapter tag, when known
}

func (e *InvalidMessageError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("invalid %s message: %s: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid message: %s: %s", e.Field, e.Reason)
}

func (e *InvalidMessageError) Is(target error) bool { return target == ErrInvalidMessage }

// AdapterNotFoundError carries the tag that failed to resolve.
type AdapterNotFoundError struct {
	Tag string
}

func (e *AdapterNotFoundError) Error() string {
	if e.Tag == "" {
		return "adapter not found: payload matched no registered adapter"
	}
	return fmt.Sprintf("adapter not found: %q", e.Tag)
}

func (e *AdapterNotFoundError) Is(target error) bool { return target == ErrAdapterNotFound }

// IsRejection reports whether err should be surfaced to the sender as an explicit rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrAdapterNotFound)
}
