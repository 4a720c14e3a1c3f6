package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies an order-venue failure. The venue adapter assigns the
// kind; the engine never guesses from error text.
type ErrorKind int

const (
	// ErrKindTransient — network failure, rate limit, 5xx. Retryable with the
	// same dedupe key.
	ErrKindTransient ErrorKind = iota
	// ErrKindPermanent — insufficient balance, invalid order, missing
	// credentials. Not retried; the decision is abandoned.
	ErrKindPermanent
	// ErrKindAmbiguous — timeout with unknown outcome. Requires reconciling
	// venue state before any retry of the same dedupe key.
	ErrKindAmbiguous
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTransient:
		return "transient"
	case ErrKindPermanent:
		return "permanent"
	case ErrKindAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// VenueError is a classified order-venue failure.
type VenueError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *VenueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("venue (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("venue (%s): %s", e.Kind, e.Msg)
}

func (e *VenueError) Unwrap() error { return e.Err }

// TransientErr wraps err as a retryable venue failure.
func TransientErr(msg string, err error) *VenueError {
	return &VenueError{Kind: ErrKindTransient, Msg: msg, Err: err}
}

// PermanentErr wraps err as a non-retryable venue failure.
func PermanentErr(msg string, err error) *VenueError {
	return &VenueError{Kind: ErrKindPermanent, Msg: msg, Err: err}
}

// AmbiguousErr wraps err as an unknown-outcome failure.
func AmbiguousErr(msg string, err error) *VenueError {
	return &VenueError{Kind: ErrKindAmbiguous, Msg: msg, Err: err}
}

// ClassifyErr returns the error kind for any error. Deadline expiry means the
// order may or may not have reached the venue, so it is ambiguous. Anything
// unclassified is treated as permanent: never silently retry an unknown
// failure against a live venue.
func ClassifyErr(err error) ErrorKind {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindAmbiguous
	}
	return ErrKindPermanent
}
