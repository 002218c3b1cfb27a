package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crmflow/internal/core/apperror"
	"crmflow/pkg/logger"
)

// ErrorResponse is the failure payload of every endpoint.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		c.JSON(Render(c, err))
	}
}

// Render maps err to a status and payload. Unknown errors become a generic 500.
func Render(c *gin.Context, err error) (int, ErrorResponse) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}

		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Status:  status,
			Details: appErr.Details,
		}
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)

	return http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal server error",
		Code:    apperror.CodeInternal,
		Status:  http.StatusInternalServerError,
		Details: map[string]any{"request_id": c.GetString("request_id")},
	}
}
