package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/batfiles/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired      = 10
	ExitAuthExpired       = 11
	ExitAuthInvalid       = 12
	ExitScopeInsufficient = 13
	// Lookup errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitUnsupportedFile = 41
	ExitAmbiguousMatch  = 42
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeAuthExpired       = "AUTH_EXPIRED"
	ErrCodeAuthClientMissing = "AUTH_CLIENT_MISSING"
	ErrCodeAuthClientInvalid = "AUTH_CLIENT_INVALID"
	ErrCodeScopeInsufficient = "SCOPE_INSUFFICIENT"
	ErrCodeFolderNotFound    = "FOLDER_NOT_FOUND"
	ErrCodeFileNotFound      = "FILE_NOT_FOUND"
	ErrCodeAmbiguousMatch    = "AMBIGUOUS_MATCH"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeNetworkError      = "NETWORK_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeIntegrity         = "INTEGRITY_MISMATCH"
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeUnsupportedFile   = "UNSUPPORTED_FILE"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnknown           = "UNKNOWN"
)

// Kind groups error codes into the categories callers act on
type Kind string

const (
	KindNotFound   Kind = "NotFoundError"
	KindAmbiguous  Kind = "AmbiguousMatchError"
	KindPermission Kind = "PermissionError"
	KindTransient  Kind = "TransientError"
	KindInvalid    Kind = "InvalidArgumentError"
	KindInternal   Kind = "InternalError"
)

// Sentinel errors, one per Kind. Use errors.Is(err, utils.ErrNotFound) to check.
var (
	ErrNotFound   = errors.New("not found")
	ErrAmbiguous  = errors.New("ambiguous match")
	ErrPermission = errors.New("permission denied")
	ErrTransient  = errors.New("transient failure")
	ErrInvalid    = errors.New("invalid argument")
	ErrInternal   = errors.New("internal error")
)

var kindSentinels = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindAmbiguous:  ErrAmbiguous,
	KindPermission: ErrPermission,
	KindTransient:  ErrTransient,
	KindInvalid:    ErrInvalid,
	KindInternal:   ErrInternal,
}

// KindForCode returns the Kind an error code belongs to
func KindForCode(code string) Kind {
	switch code {
	case ErrCodeFolderNotFound, ErrCodeFileNotFound:
		return KindNotFound
	case ErrCodeAmbiguousMatch:
		return KindAmbiguous
	case ErrCodeAuthRequired, ErrCodeAuthExpired, ErrCodeAuthClientMissing,
		ErrCodeAuthClientInvalid, ErrCodeScopeInsufficient, ErrCodePermissionDenied:
		return KindPermission
	case ErrCodeNetworkError, ErrCodeTimeout, ErrCodeRateLimited, ErrCodeIntegrity, ErrCodeCancelled:
		return KindTransient
	case ErrCodeInvalidArgument, ErrCodeUnsupportedFile:
		return KindInvalid
	default:
		return KindInternal
	}
}

// ServiceErrorBuilder helps construct ServiceError instances
type ServiceErrorBuilder struct {
	err types.ServiceError
}

// NewServiceError creates a new error builder
func NewServiceError(code, message string) *ServiceErrorBuilder {
	return &ServiceErrorBuilder{
		err: types.ServiceError{
			Code:      code,
			Message:   message,
			Retryable: KindForCode(code) == KindTransient,
		},
	}
}

func (b *ServiceErrorBuilder) WithHTTPStatus(status int) *ServiceErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *ServiceErrorBuilder) WithDriveReason(reason string) *ServiceErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *ServiceErrorBuilder) WithRetryable(retryable bool) *ServiceErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *ServiceErrorBuilder) WithContext(key string, value interface{}) *ServiceErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *ServiceErrorBuilder) Build() types.ServiceError {
	return b.err
}

// GetExitCode returns the CLI exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:      ExitAuthRequired,
		ErrCodeAuthExpired:       ExitAuthExpired,
		ErrCodeAuthClientMissing: ExitAuthRequired,
		ErrCodeAuthClientInvalid: ExitAuthInvalid,
		ErrCodeScopeInsufficient: ExitScopeInsufficient,
		ErrCodeFolderNotFound:    ExitNotFound,
		ErrCodeFileNotFound:      ExitNotFound,
		ErrCodeAmbiguousMatch:    ExitAmbiguousMatch,
		ErrCodePermissionDenied:  ExitPermissionDenied,
		ErrCodeNetworkError:      ExitNetworkError,
		ErrCodeIntegrity:         ExitNetworkError,
		ErrCodeTimeout:           ExitTimeout,
		ErrCodeRateLimited:       ExitRateLimited,
		ErrCodeInvalidArgument:   ExitInvalidArgument,
		ErrCodeUnsupportedFile:   ExitUnsupportedFile,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// GetHTTPStatus returns the status code the HTTP surface answers with for an error code
func GetHTTPStatus(errorCode string) int {
	if errorCode == ErrCodeTimeout {
		return http.StatusGatewayTimeout
	}
	switch KindForCode(errorCode) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAmbiguous:
		return http.StatusConflict
	case KindPermission:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a custom error type that carries ServiceError info
type AppError struct {
	ServiceError types.ServiceError
	cause        error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.ServiceError.Code, e.ServiceError.Message)
}

// Kind returns the error's category
func (e *AppError) Kind() Kind {
	return KindForCode(e.ServiceError.Code)
}

// Is matches the Kind sentinel so errors.Is works across wrapping
func (e *AppError) Is(target error) bool {
	return kindSentinels[e.Kind()] == target
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause records the underlying error for logging; it is never serialized
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// NewAppError creates an AppError from a ServiceError
func NewAppError(svcErr types.ServiceError) *AppError {
	return &AppError{ServiceError: svcErr}
}

// AsAppError converts any error into an AppError. Context errors become
// transient; anything unclassified is internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError(NewServiceError(ErrCodeTimeout, "operation timed out").Build()).WithCause(err)
	case errors.Is(err, context.Canceled):
		return NewAppError(NewServiceError(ErrCodeCancelled, "operation cancelled").Build()).WithCause(err)
	}
	return NewAppError(NewServiceError(ErrCodeInternalError, err.Error()).Build()).WithCause(err)
}

// KindOf returns the Kind of any error
func KindOf(err error) Kind {
	return AsAppError(err).Kind()
}
