package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation errors (VALIDATION_*) - precondition violated at
	// construction or mutation time, surfaced synchronously, never retried
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationNameRequired ErrorCode = "VALIDATION_NAME_REQUIRED"
	ErrorCodeValidationPlanInvalid  ErrorCode = "VALIDATION_PLAN_INVALID"
	ErrorCodeValidationPeriod       ErrorCode = "VALIDATION_PERIOD_INVALID"
	ErrorCodeValidationCost         ErrorCode = "VALIDATION_COST_INVALID"
	ErrorCodeValidationStartDate    ErrorCode = "VALIDATION_START_DATE_INVALID"
	ErrorCodeValidationTrialExpired ErrorCode = "VALIDATION_TRIAL_EXPIRED"
	ErrorCodeValidationReminderDays ErrorCode = "VALIDATION_REMINDER_DAYS_INVALID"
	ErrorCodeValidationSchedulePast ErrorCode = "VALIDATION_SCHEDULE_IN_PAST"
	ErrorCodeValidationTimeOfDay    ErrorCode = "VALIDATION_TIME_OF_DAY_INVALID"

	// Conflict errors (CONFLICT_*) - state-machine violation, surfaced
	// synchronously, never retried
	ErrorCodeConflictReminderLimit       ErrorCode = "CONFLICT_REMINDER_LIMIT"
	ErrorCodeConflictReminderDuplicate   ErrorCode = "CONFLICT_REMINDER_DUPLICATE"
	ErrorCodeConflictOccurrenceDuplicate ErrorCode = "CONFLICT_OCCURRENCE_DUPLICATE"
	ErrorCodeConflictAlreadySent         ErrorCode = "CONFLICT_ALREADY_SENT"

	// Not found errors (NOT_FOUND_*)
	ErrorCodeSubscriptionNotFound ErrorCode = "NOT_FOUND_SUBSCRIPTION"
	ErrorCodeReminderNotFound     ErrorCode = "NOT_FOUND_REMINDER_RULE"
	ErrorCodePendingEmailNotFound ErrorCode = "NOT_FOUND_PENDING_EMAIL"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	return code != "" && GetErrorCode(err) == code
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return strings.HasPrefix(string(GetErrorCode(err)), "VALIDATION_")
}

// IsConflictError checks if an error is a state-machine conflict
func IsConflictError(err error) bool {
	return strings.HasPrefix(string(GetErrorCode(err)), "CONFLICT_")
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return strings.HasPrefix(string(GetErrorCode(err)), "NOT_FOUND_")
}

// Sentinel instances for repository lookups. Mutation errors are built at
// their call sites instead, because WithDetail writes into the instance.
var (
	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrPendingEmailNotFound = NewDomainError(ErrorCodePendingEmailNotFound, "pending email not found")
)
