package errors

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/types"
	"github.com/dl-alexandre/batfiles/internal/utils"
	"google.golang.org/api/googleapi"
)

var rateLimitReasons = map[string]bool{
	"sharingRateLimitExceeded": true,
	"userRateLimitExceeded":    true,
	"rateLimitExceeded":        true,
	"backendError":             true,
}

// ClassifyGoogleAPIError maps an error returned by a Google API call onto the
// service error taxonomy. Errors that are already classified pass through unchanged.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return classifyTransportError(service, err, reqCtx, logger)
	}

	var code string
	retryable := false

	switch apiErr.Code {
	case http.StatusBadRequest:
		code = utils.ErrCodeInvalidArgument
	case http.StatusUnauthorized:
		code = utils.ErrCodeAuthExpired
	case http.StatusForbidden:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch {
			case rateLimitReasons[e.Reason]:
				code = utils.ErrCodeRateLimited
				retryable = true
			case e.Reason == "insufficientPermissions" || e.Reason == "insufficientScopes":
				code = utils.ErrCodeScopeInsufficient
			case e.Reason == "fileNotDownloadable":
				code = utils.ErrCodeUnsupportedFile
			}
		}
	case http.StatusNotFound:
		code = utils.ErrCodeFileNotFound
	case http.StatusTooManyRequests:
		code = utils.ErrCodeRateLimited
		retryable = true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = utils.ErrCodeNetworkError
		retryable = true
	case http.StatusRequestTimeout:
		code = utils.ErrCodeTimeout
		retryable = true
	case http.StatusConflict, http.StatusLocked, http.StatusTooEarly:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		// every remote status lands in not-found, permission or transient
		code = utils.ErrCodePermissionDenied
		if apiErr.Code >= 500 || apiErr.Code < 400 {
			code = utils.ErrCodeNetworkError
			retryable = true
		}
	}

	logger.Warn("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewServiceError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "appNotAuthorizedToFile":
			builder.WithContext("suggestedAction", "share the folder with the authorized account")
		case "insufficientPermissions", "insufficientScopes":
			builder.WithContext("suggestedAction", "re-run 'batfiles auth login' to grant drive.readonly")
		}
	}

	if len(reqCtx.InvolvedFileIDs) > 0 {
		builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'batfiles auth login' to re-authenticate")
	case utils.ErrCodeFileNotFound:
		builder.WithContext("suggestedAction", "verify the ID is correct and shared with the authorized account")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	if secs := RetryAfterSeconds(apiErr.Header); secs > 0 {
		builder.WithContext("retryAfter", secs)
	}

	return utils.NewAppError(builder.Build()).WithCause(err)
}

func classifyTransportError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	code := utils.ErrCodeNetworkError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		code = utils.ErrCodeTimeout
	case stderrors.Is(err, context.Canceled):
		code = utils.ErrCodeCancelled
	}

	logger.Warn("Non-API error",
		logging.F("error", err.Error()),
		logging.F("errorCode", code),
		logging.F("traceId", reqCtx.TraceID),
	)

	return utils.NewAppError(utils.NewServiceError(code, err.Error()).
		WithRetryable(code != utils.ErrCodeCancelled).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service).
		Build()).WithCause(err)
}

// RetryAfterSeconds parses a Retry-After header given in seconds. Zero means absent.
func RetryAfterSeconds(h http.Header) int {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
