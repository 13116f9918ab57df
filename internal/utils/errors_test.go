package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForCode(t *testing.T) {
	tests := map[string]Kind{
		ErrCodeFolderNotFound:   KindNotFound,
		ErrCodeFileNotFound:     KindNotFound,
		ErrCodeAmbiguousMatch:   KindAmbiguous,
		ErrCodeAuthExpired:      KindPermission,
		ErrCodePermissionDenied: KindPermission,
		ErrCodeNetworkError:     KindTransient,
		ErrCodeTimeout:          KindTransient,
		ErrCodeIntegrity:        KindTransient,
		ErrCodeUnsupportedFile:  KindInvalid,
		ErrCodeInvalidArgument:  KindInvalid,
		ErrCodeUnknown:          KindInternal,
		"SOMETHING_NEW":         KindInternal,
	}
	for code, want := range tests {
		assert.Equal(t, want, KindForCode(code), code)
	}
}

func TestGetHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(ErrCodeFolderNotFound))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(ErrCodeAmbiguousMatch))
	assert.Equal(t, http.StatusForbidden, GetHTTPStatus(ErrCodeScopeInsufficient))
	assert.Equal(t, http.StatusServiceUnavailable, GetHTTPStatus(ErrCodeRateLimited))
	assert.Equal(t, http.StatusGatewayTimeout, GetHTTPStatus(ErrCodeTimeout))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(ErrCodeInvalidArgument))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(ErrCodeInternalError))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitNotFound, GetExitCode(ErrCodeFolderNotFound))
	assert.Equal(t, ExitAmbiguousMatch, GetExitCode(ErrCodeAmbiguousMatch))
	assert.Equal(t, ExitTimeout, GetExitCode(ErrCodeTimeout))
	assert.Equal(t, ExitUnknown, GetExitCode("SOMETHING_NEW"))
}

func TestAppError_IsKind(t *testing.T) {
	err := fmt.Errorf("resolving: %w", NewAppError(NewServiceError(ErrCodeFolderNotFound, "Folder not found: X").Build()))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "FOLDER_NOT_FOUND: Folder not found: X", errors.Unwrap(err).Error())
}

func TestAsAppError(t *testing.T) {
	assert.Nil(t, AsAppError(nil))

	timeout := AsAppError(fmt.Errorf("list: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, timeout.ServiceError.Code)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	cancelled := AsAppError(context.Canceled)
	assert.Equal(t, ErrCodeCancelled, cancelled.ServiceError.Code)

	plain := AsAppError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, plain.ServiceError.Code)
	assert.Equal(t, KindInternal, plain.Kind())

	existing := NewAppError(NewServiceError(ErrCodeAmbiguousMatch, "two").Build())
	assert.Same(t, existing, AsAppError(fmt.Errorf("wrap: %w", existing)))
}

func TestServiceErrorBuilder(t *testing.T) {
	svcErr := NewServiceError(ErrCodeRateLimited, "slow down").
		WithHTTPStatus(429).
		WithDriveReason("userRateLimitExceeded").
		WithRetryable(true).
		WithContext("retryAfter", 3).
		Build()

	assert.Equal(t, 429, svcErr.HTTPStatus)
	assert.Equal(t, "userRateLimitExceeded", svcErr.DriveReason)
	assert.True(t, svcErr.Retryable)
	assert.Equal(t, 3, svcErr.Context["retryAfter"])
}

func TestIsRequiredFile(t *testing.T) {
	assert.True(t, IsRequiredFile("Sensor.txt"))
	assert.False(t, IsRequiredFile("sensor.txt"))
	assert.False(t, IsRequiredFile("Sensor.txt "))
	assert.True(t, BatFolderPattern.MatchString("SERVER1_CLIENT22_abc"))
	assert.False(t, BatFolderPattern.MatchString("SERVER1_CLIENT_abc"))
	assert.False(t, BatFolderPattern.MatchString("server1_client2_abc"))
}
