package materializer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"navpulse/pkg/contracts/domain"
)

// ErrNoDataForDate is returned by a Source when the upstream confirms that a
// date has no observations (weekend, market holiday).
var ErrNoDataForDate = errors.New("no data for date")

// ErrNotYetPublished is returned by a Source for a date the upstream has not
// published yet. The date fails without a marker and stays missing.
var ErrNotYetPublished = errors.New("not yet published")

// ErrorType classifies materializer errors
type ErrorType string

const (
	ErrorTypeInvalidRange   ErrorType = "invalid_range"
	ErrorTypeTransientFetch ErrorType = "transient_fetch"
	ErrorTypeFetch          ErrorType = "fetch"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeStoreRead      ErrorType = "store_read"
	ErrorTypeStoreWrite     ErrorType = "store_write"
)

// InvalidRangeError is returned when the requested range cannot be materialized.
// Nothing is attempted when it is returned.
type InvalidRangeError struct {
	Range domain.DateRange
	Cause error
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", ErrorTypeInvalidRange, e.Range, e.Cause)
}

func (e *InvalidRangeError) Unwrap() error { return e.Cause }

// TransientFetchError marks a fetch failure worth retrying.
type TransientFetchError struct {
	Date       time.Time
	StatusCode int
	Cause      error
}

// NewTransientFetchError wraps cause as retryable.
func NewTransientFetchError(date time.Time, statusCode int, cause error) *TransientFetchError {
	return &TransientFetchError{Date: date, StatusCode: statusCode, Cause: cause}
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s: status %d: %v", ErrorTypeTransientFetch, domain.FormatDate(e.Date), e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", ErrorTypeTransientFetch, domain.FormatDate(e.Date), e.Cause)
}

func (e *TransientFetchError) Unwrap() error { return e.Cause }

// FetchError is a fetch failure that retrying will not fix, such as a
// rejected request or an unparseable payload.
type FetchError struct {
	Date       time.Time
	StatusCode int
	Cause      error
}

// NewFetchError wraps cause as permanent.
func NewFetchError(date time.Time, statusCode int, cause error) *FetchError {
	return &FetchError{Date: date, StatusCode: statusCode, Cause: cause}
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s: status %d: %v", ErrorTypeFetch, domain.FormatDate(e.Date), e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", ErrorTypeFetch, domain.FormatDate(e.Date), e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ValidationError describes why a single record was dropped.
type ValidationError struct {
	SchemeCode string
	Date       time.Time
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] scheme %q on %s: %s %s", ErrorTypeValidation, e.SchemeCode, domain.FormatDate(e.Date), e.Field, e.Reason)
}

// StoreReadError is returned when the store coverage cannot be read.
// The run is aborted before any fetch.
type StoreReadError struct {
	Cause error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("[%s] existing dates: %v", ErrorTypeStoreRead, e.Cause)
}

func (e *StoreReadError) Unwrap() error { return e.Cause }

// StoreWriteError is a failed write for one date.
type StoreWriteError struct {
	Date  time.Time
	Op    string
	Cause error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v", ErrorTypeStoreWrite, e.Op, domain.FormatDate(e.Date), e.Cause)
}

func (e *StoreWriteError) Unwrap() error { return e.Cause }

// IsTransient reports whether a fetch error should be retried.
// Network errors and per-request timeouts count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return false
	}
	var te *TransientFetchError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// GetErrorType returns the type of err
func GetErrorType(err error) ErrorType {
	var (
		ir *InvalidRangeError
		te *TransientFetchError
		fe *FetchError
		ve *ValidationError
		sr *StoreReadError
		sw *StoreWriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ir):
		return ErrorTypeInvalidRange
	case errors.As(err, &sr):
		return ErrorTypeStoreRead
	case errors.As(err, &sw):
		return ErrorTypeStoreWrite
	case errors.As(err, &ve):
		return ErrorTypeValidation
	case errors.As(err, &fe):
		return ErrorTypeFetch
	case errors.As(err, &te):
		return ErrorTypeTransientFetch
	}
	return ErrorTypeFetch
}
