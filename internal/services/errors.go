package services

import "errors"

// Service errors
var (
	// ErrRunInProgress is returned when a run is requested while another is executing.
	ErrRunInProgress = errors.New("materialize run already in progress")
	// ErrNoRunYet means no run has completed since startup.
	ErrNoRunYet = errors.New("no materialize run has completed")

	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
