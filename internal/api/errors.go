package api

import (
	"errors"
	"net/http"

	"storefront/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusUnprocessableEntity,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindEmptyCart:       http.StatusBadRequest,
	apperr.KindOutOfStock:      http.StatusConflict,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Error   apperr.Kind       `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func toAppError(err error) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal("process request", err)
}

func abortWithError(c *gin.Context, err error) {
	appErr := toAppError(err)
	c.AbortWithStatusJSON(statusFor(appErr.Kind), errorResponse{
		Error:   appErr.Kind,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	})
}

// writeError logs server-side failures with their cause and writes the error body.
// The cause never reaches the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if statusFor(appErr.Kind) >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	abortWithError(c, appErr)
}

func fieldError(field, message string) *apperr.Error {
	return apperr.Validation(map[string]string{field: message})
}

func badBody(err error) *apperr.Error {
	return apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
}
