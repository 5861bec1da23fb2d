// Package ragerr defines the error kinds shared by the ingestion and
// retrieval pipeline.
//
// Every error returned across a package boundary wraps exactly one kind, so
// callers classify failures with errors.Is:
//
//	if errors.Is(err, ragerr.ErrUnknownCollection) { ... }
package ragerr

import (
	"context"
	"errors"
	"fmt"
)

// Caller errors. Never retried.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrSchemaError       = errors.New("schema error")
)

// Data-quality errors. The record has to be fixed before it is retried.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMissingField      = errors.New("missing field")
)

// Transient errors. Safe to retry with backoff at the caller's discretion.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrLLMService        = errors.New("language model service error")
	ErrTimeout           = errors.New("timeout")
)

// ErrSourceNotFound is returned when a fetcher cannot locate the source.
var ErrSourceNotFound = errors.New("source not found")

// ErrUnexpectedBackend wraps opaque failures from the storage backend.
var ErrUnexpectedBackend = errors.New("unexpected backend error")

var kinds = []error{
	ErrInvalidArgument,
	ErrUnknownCollection,
	ErrSchemaError,
	ErrDimensionMismatch,
	ErrMissingField,
	ErrSourceUnavailable,
	ErrSourceNotFound,
	ErrEmbeddingService,
	ErrLLMService,
	ErrTimeout,
	ErrUnexpectedBackend,
}

// Error is a classified pipeline error.
type Error struct {
	Op   string // operation that failed, e.g. "vectorstore.insert"
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind with a formatted message as cause.
func New(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil. Context deadline
// errors are always classified as ErrTimeout regardless of kind.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind wrapped by err, or nil if err is unclassified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether err belongs to a transient kind.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrSourceUnavailable, ErrEmbeddingService, ErrLLMService, ErrTimeout:
		return true
	default:
		return false
	}
}
