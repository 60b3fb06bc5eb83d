package errors

import (
	"errors"
	"fmt"
)

// Error types for better error classification and handling

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Monitoring engine preconditions
	ErrorTypeAlreadyActive        ErrorType = "already_active"
	ErrorTypeNotActive            ErrorType = "not_active"
	ErrorTypeNoServicesConfigured ErrorType = "no_services_configured"
	ErrorTypeDuplicateService     ErrorType = "duplicate_service"
	ErrorTypeInvalidService       ErrorType = "invalid_service"
	ErrorTypeOutOfRange           ErrorType = "out_of_range"

	// General classification
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeUnexpected ErrorType = "unexpected"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Engine precondition errors
func NewAlreadyActiveError(message string) *DomainError {
	return NewDomainError(ErrorTypeAlreadyActive, message, nil)
}

func NewNotActiveError(message string) *DomainError {
	return NewDomainError(ErrorTypeNotActive, message, nil)
}

func NewNoServicesConfiguredError(message string) *DomainError {
	return NewDomainError(ErrorTypeNoServicesConfigured, message, nil)
}

func NewDuplicateServiceError(message string) *DomainError {
	return NewDomainError(ErrorTypeDuplicateService, message, nil)
}

func NewInvalidServiceError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInvalidService, message, cause)
}

func NewOutOfRangeError(message string) *DomainError {
	return NewDomainError(ErrorTypeOutOfRange, message, nil)
}

// Validation errors
func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

// System errors
func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func NewUnexpectedError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeUnexpected, message, cause)
}

// TypeOf returns the type of the outermost DomainError in the chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

func isType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

// Error checking helpers
func IsAlreadyActiveError(err error) bool {
	return isType(err, ErrorTypeAlreadyActive)
}

func IsNotActiveError(err error) bool {
	return isType(err, ErrorTypeNotActive)
}

func IsNoServicesConfiguredError(err error) bool {
	return isType(err, ErrorTypeNoServicesConfigured)
}

func IsDuplicateServiceError(err error) bool {
	return isType(err, ErrorTypeDuplicateService)
}

func IsInvalidServiceError(err error) bool {
	return isType(err, ErrorTypeInvalidService)
}

func IsOutOfRangeError(err error) bool {
	return isType(err, ErrorTypeOutOfRange)
}

func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

func IsPermissionError(err error) bool {
	return isType(err, ErrorTypePermission)
}

func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return isType(err, ErrorTypeCancelled)
}

func IsUnexpectedError(err error) bool {
	return isType(err, ErrorTypeUnexpected)
}
