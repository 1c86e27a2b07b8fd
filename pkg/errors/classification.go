package errors

import (
	"errors"
	"sort"
)

// ErrorCategory groups errors by the kind of problem they describe.
// The print protocol maps each category onto a reply status.
type ErrorCategory string

const (
	CategorySpool        ErrorCategory = "spool"
	CategoryWrite        ErrorCategory = "write"
	CategoryConflict     ErrorCategory = "conflict"
	CategoryNotification ErrorCategory = "notification"
	CategoryState        ErrorCategory = "state"
	CategoryNotFound     ErrorCategory = "not_found"
	CategoryValidation   ErrorCategory = "validation"
	CategoryUnknown      ErrorCategory = "unknown"
)

type ErrorSeverity string

const (
	SeverityHigh   ErrorSeverity = "high"
	SeverityMedium ErrorSeverity = "medium"
	SeverityLow    ErrorSeverity = "low"
)

// ClassifiedError is an error with its category attached, plus whether the
// remote may reasonably try the same request again later.
type ClassifiedError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ClassifyError classifies an error based on the sentinel it wraps
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	c := &ClassifiedError{Err: err, Category: CategoryUnknown, Severity: SeverityMedium}
	switch {
	case IsSpoolUnavailable(err):
		c.Category, c.Severity = CategorySpool, SeverityHigh
	case IsSpoolWrite(err):
		c.Category = CategoryWrite
	case IsJobInProgress(err):
		c.Category, c.Severity, c.Retryable = CategoryConflict, SeverityLow, true
	case IsNotificationError(err):
		c.Category, c.Severity = CategoryNotification, SeverityHigh
	case errors.Is(err, ErrDeviceNotReady):
		c.Category = CategoryState
	case IsNotFoundError(err), errors.Is(err, ErrJobClosed):
		c.Category, c.Severity = CategoryNotFound, SeverityLow
	case errors.Is(err, ErrBadMessage),
		errors.Is(err, ErrMalformedHex),
		errors.Is(err, ErrInvalidDeviceArgs),
		errors.Is(err, ErrFrameTooLarge),
		IsConfigError(err):
		c.Category, c.Severity = CategoryValidation, SeverityLow
	}
	return c
}

func GetCategory(err error) ErrorCategory {
	classified := ClassifyError(err)
	if classified == nil {
		return CategoryUnknown
	}
	return classified.Category
}

func IsRetryable(err error) bool {
	classified := ClassifyError(err)
	return classified != nil && classified.Retryable
}

// FormatErrorForLogging flattens an error into logger key/value pairs.
func FormatErrorForLogging(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	classified := ClassifyError(err)
	result := map[string]interface{}{
		"error":     err.Error(),
		"category":  string(classified.Category),
		"severity":  string(classified.Severity),
		"retryable": classified.Retryable,
	}
	if jobID, ok := GetJobID(err); ok {
		result["jobId"] = jobID
	}
	return result
}

// LogError logs an error with its classification attached
func LogError(logger interface{ Error(string, ...interface{}) }, err error, msg string) {
	if err == nil {
		return
	}

	logData := FormatErrorForLogging(err)
	keys := make([]string, 0, len(logData))
	for k := range logData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(logData)*2)
	for _, k := range keys {
		args = append(args, k, logData[k])
	}
	logger.Error(msg, args...)
}
