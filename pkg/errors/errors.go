// Package errors provides the error taxonomy shared by the print and event
// bridges: sentinel errors for every failure class plus typed wrappers that
// carry the path, job or printer the failure belongs to.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// Spool errors
	ErrSpoolUnavailable = errors.New("spool directory unavailable")
	ErrSpoolWrite       = errors.New("spool write failed")

	// Job errors
	ErrJobInProgress = errors.New("print job already in progress")
	ErrJobClosed     = errors.New("print job is closed")
	ErrJobNotFound   = errors.New("print job not found")

	// Device errors
	ErrNotificationChannel = errors.New("notification channel failure")
	ErrDeviceNotReady      = errors.New("printer device not ready")
	ErrPrinterNotFound     = errors.New("printer not found")
	ErrInvalidDeviceArgs   = errors.New("invalid device arguments")

	// Channel errors
	ErrMalformedHex  = errors.New("malformed hex payload")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrBadMessage    = errors.New("malformed channel message")

	ErrInvalidConfig = errors.New("invalid configuration")
)

// SpoolError represents a failure on a spool directory or spool file
type SpoolError struct {
	Path      string
	Operation string
	Err       error
}

func (e *SpoolError) Error() string {
	return fmt.Sprintf("spool %s: operation %s: %v", e.Path, e.Operation, e.Err)
}

func (e *SpoolError) Unwrap() error {
	return e.Err
}

// PrintJobError represents an error related to a specific print job
type PrintJobError struct {
	JobID     uint32
	Printer   string
	Operation string
	Err       error
}

func (e *PrintJobError) Error() string {
	return fmt.Sprintf("printer %q job %d: operation %s: %v", e.Printer, e.JobID, e.Operation, e.Err)
}

func (e *PrintJobError) Unwrap() error {
	return e.Err
}

// NotificationError represents a failure on the completion FIFO
type NotificationError struct {
	Path      string
	Operation string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s: operation %s: %v", e.Path, e.Operation, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Component string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s.%s: %v", e.Component, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors
func WrapSpoolError(path, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &SpoolError{Path: path, Operation: operation, Err: err}
}

func WrapPrintJobError(printer string, jobID uint32, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &PrintJobError{JobID: jobID, Printer: printer, Operation: operation, Err: err}
}

func WrapNotificationError(path, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &NotificationError{Path: path, Operation: operation, Err: err}
}

func WrapConfigError(component, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Err: err}
}

// NewSpoolUnavailableError reports a spool directory that cannot take new files.
func NewSpoolUnavailableError(dir string, cause error) error {
	return WrapSpoolError(dir, "verify", fmt.Errorf("%w: %v", ErrSpoolUnavailable, cause))
}

// NewSpoolWriteError reports a failed append to a spool file.
func NewSpoolWriteError(path, operation string, cause error) error {
	return WrapSpoolError(path, operation, fmt.Errorf("%w: %v", ErrSpoolWrite, cause))
}

func NewJobInProgressError(printer string, active, requested uint32) error {
	return WrapPrintJobError(printer, requested, "create",
		fmt.Errorf("%w: job %d is still open", ErrJobInProgress, active))
}

func NewNotificationChannelError(path, operation string, cause error) error {
	return WrapNotificationError(path, operation, fmt.Errorf("%w: %v", ErrNotificationChannel, cause))
}

func NewConfigError(component, field string, err error) error {
	return WrapConfigError(component, field, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
}

// Error classification functions
func IsSpoolUnavailable(err error) bool {
	return errors.Is(err, ErrSpoolUnavailable)
}

func IsSpoolWrite(err error) bool {
	return errors.Is(err, ErrSpoolWrite)
}

func IsJobInProgress(err error) bool {
	return errors.Is(err, ErrJobInProgress)
}

func IsNotificationError(err error) bool {
	return errors.Is(err, ErrNotificationChannel)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrPrinterNotFound)
}

// GetJobID extracts the job id from a PrintJobError anywhere in the chain.
func GetJobID(err error) (uint32, bool) {
	var je *PrintJobError
	if errors.As(err, &je) {
		return je.JobID, true
	}
	return 0, false
}

// JoinErrors combines multiple errors into a single error.
// Nil entries are dropped; a single survivor is returned as is.
func JoinErrors(errs ...error) error {
	var validErrs []error
	for _, err := range errs {
		if err != nil {
			validErrs = append(validErrs, err)
		}
	}

	if len(validErrs) == 0 {
		return nil
	}
	if len(validErrs) == 1 {
		return validErrs[0]
	}

	return &multiError{errors: validErrs}
}

type multiError struct {
	errors []error
}

func (e *multiError) Error() string {
	msg := e.errors[0].Error()
	for _, err := range e.errors[1:] {
		msg += "; " + err.Error()
	}
	return msg
}

func (e *multiError) Unwrap() []error {
	return e.errors
}
