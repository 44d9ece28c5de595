// Package domain defines domain-level errors for the candles feature.
package domain

import (
	"context"
	"errors"
	"fmt"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
)

// ErrorKind classifies ingestion failures for per-instrument outcomes.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindTransient     ErrorKind = "adapter_transient"
	KindPermanent     ErrorKind = "adapter_permanent"
	KindFetch         ErrorKind = "fetch"
	KindStorage       ErrorKind = "storage"
	KindCancelled     ErrorKind = "cancelled"
	KindUnknown       ErrorKind = "unknown"
)

// ConfigurationError indicates invalid or contradictory run parameters.
// It is fatal to the run and is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AdapterKind distinguishes retryable provider failures from terminal ones.
type AdapterKind int

const (
	// Transient covers network errors, timeouts, rate limits and 5xx responses.
	Transient AdapterKind = iota
	// Permanent covers authentication and validation failures.
	Permanent
)

func (k AdapterKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// AdapterError is returned by exchange adapters.
type AdapterError struct {
	Kind   AdapterKind
	Status int // HTTP status when known
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("adapter %s (http %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("adapter %s: %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable adapter failure.
func NewTransientError(status int, err error) *AdapterError {
	return &AdapterError{Kind: Transient, Status: status, Err: err}
}

// NewPermanentError wraps err as a terminal adapter failure.
func NewPermanentError(status int, err error) *AdapterError {
	return &AdapterError{Kind: Permanent, Status: status, Err: err}
}

// IsTransient reports whether err is worth retrying.
// Errors that are not AdapterErrors are treated as transient unless they are context cancellations.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind == Transient
	}
	return true
}

// FetchError reports a fetch that could not cover its window.
// Partial holds the candles retrieved before the failure; Gap is the sub-window left unfetched.
type FetchError struct {
	Cause   error
	Partial []entity.Candle
	Gap     entity.TimeWindow
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s incomplete (%d candles kept): %v", e.Gap, len(e.Partial), e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// StorageError reports a batch that the store did not confirm as fully committed.
type StorageError struct {
	Op        string
	Table     string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KindOf maps err onto the error taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var (
		ce *ConfigurationError
		ae *AdapterError
		fe *FetchError
		se *StorageError
	)
	switch {
	case errors.As(err, &ce):
		return KindConfiguration
	case errors.As(err, &ae):
		// a permanent adapter failure stays permanent even when wrapped in a FetchError
		if ae.Kind == Permanent {
			return KindPermanent
		}
		if errors.As(err, &fe) {
			return KindFetch
		}
		return KindTransient
	case errors.As(err, &fe):
		return KindFetch
	case errors.As(err, &se):
		return KindStorage
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnknown
	}
}
