package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dl-alexandre/batfiles/internal/logging"
	"github.com/dl-alexandre/batfiles/internal/utils"
)

type errorBody struct {
	Kind      string                 `json:"kind"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error envelope. The status comes from the
// error code; internal causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	appErr := utils.AsAppError(err)
	svcErr := appErr.ServiceError
	status := utils.GetHTTPStatus(svcErr.Code)

	fields := []logging.Field{
		logging.F("code", svcErr.Code),
		logging.F("status", status),
		logging.F("path", r.URL.Path),
	}
	if cause := appErr.Unwrap(); cause != nil {
		fields = append(fields, logging.F("cause", cause.Error()))
	}
	log := logger.WithContext(r.Context())
	if status >= 500 {
		log.Error(svcErr.Message, fields...)
	} else {
		log.Info(svcErr.Message, fields...)
	}

	retryable := appErr.Kind() == utils.KindTransient
	if retryable {
		retryAfter := 1
		if s, ok := svcErr.Context["retryAfter"].(int); ok && s > 0 {
			retryAfter = s
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	message, errCtx := svcErr.Message, svcErr.Context
	if appErr.Kind() == utils.KindInternal {
		message, errCtx = "Internal server error", nil
	}

	writeJSON(w, status, errorResponse{
		Success: false,
		Error: errorBody{
			Kind:      string(appErr.Kind()),
			Code:      svcErr.Code,
			Message:   message,
			Retryable: retryable,
			Context:   errCtx,
		},
	})
}
