package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"
	CodeMissingField = "MISSING_FIELD"

	// Connection errors
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeNotConnected        = "NOT_CONNECTED"
	CodeProviderDenied      = "PROVIDER_DENIED"
	CodeTokenExchangeFailed = "TOKEN_EXCHANGE_FAILED"
	CodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"

	// External errors
	CodeProviderAPIError    = "PROVIDER_API_ERROR"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeMalformedResponse   = "MALFORMED_RESPONSE"
	CodeDatabaseError       = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Detail returns a string detail or "".
func (e *AppError) Detail(key string) string {
	v, _ := e.Details[key].(string)
	return v
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Connection errors

func UserNotFound(message string) *AppError {
	if message == "" {
		message = "authorization state does not resolve to a user"
	}
	return &AppError{
		Code:    CodeUserNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

func NotConnected(provider string) *AppError {
	return &AppError{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("%s is not connected", provider),
		Status:  http.StatusConflict,
		Details: map[string]any{"provider": provider},
	}
}

func ProviderDenied(provider, reason string) *AppError {
	return &AppError{
		Code:    CodeProviderDenied,
		Message: fmt.Sprintf("%s authorization was denied: %s", provider, reason),
		Status:  http.StatusForbidden,
		Details: map[string]any{"provider": provider, "reason": reason},
	}
}

func TokenExchangeFailed(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeTokenExchangeFailed,
		Message: fmt.Sprintf("token exchange with %s failed", provider),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

func UnsupportedProvider(provider string) *AppError {
	return &AppError{
		Code:    CodeUnsupportedProvider,
		Message: fmt.Sprintf("unsupported provider: %s", provider),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"provider": provider},
	}
}

// External errors

// ProviderAPIError carries the provider's own error code and message.
func ProviderAPIError(provider, code, message string) *AppError {
	return &AppError{
		Code:    CodeProviderAPIError,
		Message: fmt.Sprintf("%s api error: %s", provider, message),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"provider": provider, "provider_code": code, "provider_message": message},
	}
}

func ProviderUnavailable(message string) *AppError {
	if message == "" {
		message = "text generation provider is not configured"
	}
	return &AppError{
		Code:    CodeProviderUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
	}
}

func GenerationFailed(err error) *AppError {
	return &AppError{
		Code:    CodeGenerationFailed,
		Message: "text generation failed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func MalformedResponse(reason string) *AppError {
	return &AppError{
		Code:    CodeMalformedResponse,
		Message: fmt.Sprintf("malformed generator response: %s", reason),
		Status:  http.StatusBadGateway,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrUserNotFound        = &AppError{Code: CodeUserNotFound}
	ErrNotConnected        = &AppError{Code: CodeNotConnected}
	ErrProviderDenied      = &AppError{Code: CodeProviderDenied}
	ErrTokenExchangeFailed = &AppError{Code: CodeTokenExchangeFailed}
	ErrProviderAPI         = &AppError{Code: CodeProviderAPIError}
	ErrProviderUnavailable = &AppError{Code: CodeProviderUnavailable}
	ErrGenerationFailed    = &AppError{Code: CodeGenerationFailed}
	ErrMalformedResponse   = &AppError{Code: CodeMalformedResponse}
	ErrTimeout             = &AppError{Code: CodeTimeout}
)

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("request").WithError(err)
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	return AsAppError(err).Status
}

// FromContext converts a cancelled or expired context into an AppError.
// It returns err unchanged for anything else.
func FromContext(err error, operation string) error {
	if err == nil || IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(operation).WithError(err)
	}
	return err
}
