package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/dl-alexandre/batfiles/internal/logging"
	testhelpers "github.com/dl-alexandre/batfiles/internal/testing"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func apiError(status int, reason string) *googleapi.Error {
	e := &googleapi.Error{Code: status, Message: "drive said no"}
	if reason != "" {
		e.Errors = []googleapi.ErrorItem{{Reason: reason}}
	}
	return e
}

func TestClassifyGoogleAPIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantKind  utils.Kind
		retryable bool
	}{
		{"bad request", apiError(400, "invalid"), utils.ErrCodeInvalidArgument, utils.KindInvalid, false},
		{"unauthorized", apiError(401, "authError"), utils.ErrCodeAuthExpired, utils.KindPermission, false},
		{"forbidden", apiError(403, "forbidden"), utils.ErrCodePermissionDenied, utils.KindPermission, false},
		{"user rate limit", apiError(403, "userRateLimitExceeded"), utils.ErrCodeRateLimited, utils.KindTransient, true},
		{"scope", apiError(403, "insufficientPermissions"), utils.ErrCodeScopeInsufficient, utils.KindPermission, false},
		{"not downloadable", apiError(403, "fileNotDownloadable"), utils.ErrCodeUnsupportedFile, utils.KindInvalid, false},
		{"not found", apiError(404, "notFound"), utils.ErrCodeFileNotFound, utils.KindNotFound, false},
		{"too many", apiError(429, ""), utils.ErrCodeRateLimited, utils.KindTransient, true},
		{"unavailable", apiError(503, "backendError"), utils.ErrCodeNetworkError, utils.KindTransient, true},
		{"odd 5xx", apiError(599, ""), utils.ErrCodeNetworkError, utils.KindTransient, true},
		{"request timeout", apiError(408, ""), utils.ErrCodeTimeout, utils.KindTransient, true},
		{"conflict", apiError(409, "conflict"), utils.ErrCodeNetworkError, utils.KindTransient, true},
		{"locked", apiError(423, ""), utils.ErrCodeNetworkError, utils.KindTransient, true},
		{"too early", apiError(425, ""), utils.ErrCodeNetworkError, utils.KindTransient, true},
		{"precondition failed", apiError(412, "conditionNotMet"), utils.ErrCodePermissionDenied, utils.KindPermission, false},
		{"odd 4xx", apiError(418, ""), utils.ErrCodePermissionDenied, utils.KindPermission, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), utils.ErrCodeTimeout, utils.KindTransient, true},
		{"cancelled", context.Canceled, utils.ErrCodeCancelled, utils.KindTransient, false},
		{"connection reset", fmt.Errorf("read tcp: connection reset by peer"), utils.ErrCodeNetworkError, utils.KindTransient, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyGoogleAPIError("drive", tt.err, testhelpers.TestRequestContext(), logging.NewNoOpLogger())
			appErr := utils.AsAppError(err)
			assert.Equal(t, tt.wantCode, appErr.ServiceError.Code)
			assert.Equal(t, tt.wantKind, appErr.Kind())
			assert.Equal(t, tt.retryable, appErr.ServiceError.Retryable)
			assert.Equal(t, "test-trace-id", appErr.ServiceError.Context["traceId"])
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyGoogleAPIError_PassesThroughClassified(t *testing.T) {
	orig := utils.NewAppError(utils.NewServiceError(utils.ErrCodeFolderNotFound, "Folder not found: X").Build())
	err := ClassifyGoogleAPIError("drive", fmt.Errorf("wrapped: %w", orig), testhelpers.TestRequestContext(), logging.NewNoOpLogger())
	assert.Same(t, orig, err)
	assert.Nil(t, ClassifyGoogleAPIError("drive", nil, testhelpers.TestRequestContext(), logging.NewNoOpLogger()))
}

func TestClassifyGoogleAPIError_Context(t *testing.T) {
	apiErr := apiError(403, "appNotAuthorizedToFile")
	apiErr.Header = http.Header{"Retry-After": []string{"7"}}
	reqCtx := testhelpers.TestRequestContextWithFiles("file-1")

	appErr := utils.AsAppError(ClassifyGoogleAPIError("drive", apiErr, reqCtx, logging.NewNoOpLogger()))
	require.NotNil(t, appErr)
	assert.Equal(t, "appNotAuthorizedToFile", appErr.ServiceError.DriveReason)
	assert.Equal(t, 403, appErr.ServiceError.HTTPStatus)
	assert.Equal(t, 7, appErr.ServiceError.Context["retryAfter"])
	assert.Equal(t, []string{"file-1"}, appErr.ServiceError.Context["fileIds"])
	assert.Contains(t, appErr.ServiceError.Context["suggestedAction"], "authorized account")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, RetryAfterSeconds(nil))
	assert.Equal(t, 0, RetryAfterSeconds(http.Header{}))
	assert.Equal(t, 12, RetryAfterSeconds(http.Header{"Retry-After": []string{"12"}}))
	assert.Equal(t, 0, RetryAfterSeconds(http.Header{"Retry-After": []string{"Wed, 21 Oct 2015 07:28:00 GMT"}}))
	assert.Equal(t, 0, RetryAfterSeconds(http.Header{"Retry-After": []string{"-3"}}))
}
