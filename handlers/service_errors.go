package handlers

import (
	"net/http"

	"github.com/upb/zoneauth/services"
	"github.com/upb/zoneauth/utils"
	"go.uber.org/zap"
)

// errorStatus maps domain error types to HTTP status codes. Internal and
// untyped errors are absent: they become a 500 with a generic message.
var errorStatus = map[services.ErrorType]int{
	services.ErrorTypeNotFound:     http.StatusNotFound,
	services.ErrorTypeValidation:   http.StatusBadRequest,
	services.ErrorTypeUnauthorized: http.StatusUnauthorized,
	services.ErrorTypeForbidden:    http.StatusForbidden,
	services.ErrorTypeConflict:     http.StatusConflict,
	services.ErrorTypeExternal:     http.StatusBadGateway,
}

// HandleServiceError writes err as a JSON error response.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var writeErr error
	if status, ok := errorStatus[services.GetErrorType(err)]; ok {
		writeErr = utils.WriteError(w, status, err.Error(), services.GetErrorDetails(err))
	} else {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError writes a 400 for request decoding or validation
// failures, listing the failed fields when there are any.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()
	if fields := utils.GetValidationFields(err); fields != nil {
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
	}

	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
