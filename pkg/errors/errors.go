package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"skycast/internal/core/domain"
)

// ErrorCode is the machine-readable code carried in error replies.
type ErrorCode string

const (
	ErrCodeAuthenticationRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrCodeConflict               ErrorCode = "CONFLICT"
	ErrCodeInvalidArgument        ErrorCode = "INVALID_ARGUMENT"
	ErrCodeInsufficientResource   ErrorCode = "INSUFFICIENT_RESOURCE"
	ErrCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeTransportFailure       ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit              ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable     ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidArgumentError(message string) *AppError {
	return NewAppError(ErrCodeInvalidArgument, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewAuthenticationRequiredError(message string) *AppError {
	return NewAppError(ErrCodeAuthenticationRequired, message, http.StatusUnauthorized)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

var domainCodes = []struct {
	sentinel error
	code     ErrorCode
	status   int
}{
	{domain.ErrAuthenticationRequired, ErrCodeAuthenticationRequired, http.StatusUnauthorized},
	{domain.ErrConflict, ErrCodeConflict, http.StatusConflict},
	{domain.ErrInvalidArgument, ErrCodeInvalidArgument, http.StatusBadRequest},
	{domain.ErrInsufficientResource, ErrCodeInsufficientResource, http.StatusPaymentRequired},
	{domain.ErrPermissionDenied, ErrCodePermissionDenied, http.StatusForbidden},
	{domain.ErrNotFound, ErrCodeNotFound, http.StatusNotFound},
	{domain.ErrTransportFailure, ErrCodeTransportFailure, http.StatusBadGateway},
	{domain.ErrUnauthorized, ErrCodeUnauthorized, http.StatusForbidden},
	{domain.ErrBackpressure, ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
}

// FromDomain maps an error carrying a domain sentinel to its typed reply.
// Anything unrecognized becomes INTERNAL_ERROR with a generic message.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}
	for _, m := range domainCodes {
		if stderrors.Is(err, m.sentinel) {
			return WrapError(err, m.code, err.Error(), m.status)
		}
	}
	return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
