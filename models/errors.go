package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in product results and batch-level failures.
const (
	ErrCodeConfigInvalid = "CONFIG_INVALID"
	ErrCodeBrowserLaunch = "BROWSER_LAUNCH"
	ErrCodeAuthFailed    = "AUTH_FAILED"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeElement       = "ELEMENT_NOT_FOUND"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeSummaryWrite  = "SUMMARY_WRITE"

	// Workflow-specific codes.
	ErrCodeEngagementID    = "ENGAGEMENT_ID_MISSING"
	ErrCodeOptionNotFound  = "OPTION_NOT_FOUND"
	ErrCodeDownloadTimeout = "DOWNLOAD_TIMEOUT"
)

// AutomationError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AutomationError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *AutomationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

// NewAutomationError creates a new AutomationError.
func NewAutomationError(code, message string, err error) *AutomationError {
	return &AutomationError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first AutomationError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var ae *AutomationError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Categorize wraps raw page errors into typed AutomationErrors. Deadline
// and cancellation errors become ErrCodeTimeout, anything else gets code.
// Errors that are already typed pass through unchanged.
func Categorize(err error, code, msg string) error {
	if err == nil {
		return nil
	}
	var ae *AutomationError
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewAutomationError(ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return NewAutomationError(ErrCodeTimeout, "operation canceled", err)
	default:
		return NewAutomationError(code, msg, err)
	}
}
