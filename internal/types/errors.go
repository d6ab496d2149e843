package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrSessionNotReady     = errors.New("fetch session not initialized")
	ErrInvalidPagination   = errors.New("searchAfter cannot be combined with page other than 1")
	ErrStoreTimeout        = errors.New("store round trip timed out")
	ErrContactForPrice     = errors.New("price is contact-for-price")
	ErrUnparseablePrice    = errors.New("price is not a number")
	ErrUnknownDate         = errors.New("unrecognized relative date")
	ErrMissingField        = errors.New("field not present in card")
	ErrLockHeld            = errors.New("category is being crawled by another run")
	ErrSoldOutNotIndexable = errors.New("sold-out listing cannot be indexed")
)

// ExtractionError records one card field that could not be read.
// It never leaves the extractor; it is kept for observability.
type ExtractionError struct {
	Card  int
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract card %d field %q: %v", e.Card, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed crawl option or search query.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportPreconditionError is returned when a crawl starts without a usable session.
type TransportPreconditionError struct {
	Driver string
	Err    error
}

func (e *TransportPreconditionError) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("transport precondition: %v", e.Err)
	}
	return fmt.Sprintf("transport precondition (%s): %v", e.Driver, e.Err)
}

func (e *TransportPreconditionError) Unwrap() error { return e.Err }

// StoreUnavailableError wraps a failed store round trip.
type StoreUnavailableError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialWriteError reports a bulk insert that only partly succeeded
// after the stale copies were already deleted.
type PartialWriteError struct {
	Inserted   int
	Failed     int
	FailedKeys []string
	Err        error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("partial write: %d inserted, %d failed", e.Inserted, e.Failed)
	if len(e.FailedKeys) > 0 {
		shown := e.FailedKeys
		if len(shown) > 5 {
			shown = shown[:5]
		}
		msg += " (" + strings.Join(shown, ", ")
		if len(e.FailedKeys) > len(shown) {
			msg += ", ..."
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// PipelineError wraps a middleware failure for one listing.
type PipelineError struct {
	Stage string
	Key   string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.Key, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
