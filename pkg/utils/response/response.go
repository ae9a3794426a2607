package response

import (
	"net/http"
	"strconv"

	"codeexec/pkg/errors"
	"codeexec/pkg/utils/contextkey"
	"codeexec/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCodeHeader carries the numeric error code of a rejected request.
const ErrorCodeHeader = "X-Error-Code"

// ErrorBody is the body of every rejected request.
type ErrorBody struct {
	Error string `json:"error"`
}

// Success sends data as the response body.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error maps err to its status. Uncoded errors become a 500 whose cause is
// logged but not echoed to the caller.
func Error(c *gin.Context, err error) {
	code, message := errors.InternalServerError, errors.InternalServerError.Message()
	var details map[string]interface{}
	if coded, ok := errors.As(err); ok {
		code, message, details = coded.Code, coded.Error(), coded.Details
	}
	status := code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(code)),
		zap.Int("status", status),
		zap.String("message", message),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	if status >= http.StatusInternalServerError && code != errors.ServiceBusy {
		logger.Error(c.Request.Context(), "request failed", append(fields, zap.Error(err))...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}
	write(c, status, code, message)
}

// AbortWithError sends an error response and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// BadRequest rejects malformed input with a 400.
func BadRequest(c *gin.Context, message string) {
	logger.Warn(c.Request.Context(), "request rejected",
		zap.Int("code", int(errors.InvalidParams)),
		zap.String("message", message),
	)
	write(c, http.StatusBadRequest, errors.InvalidParams, message)
}

// TraceID returns the trace id attached to the request, if any.
func TraceID(c *gin.Context) string {
	if v, ok := c.Request.Context().Value(contextkey.TraceID).(string); ok {
		return v
	}
	return ""
}

func write(c *gin.Context, status int, code errors.ErrorCode, message string) {
	c.Header(ErrorCodeHeader, strconv.Itoa(int(code)))
	c.JSON(status, ErrorBody{Error: message})
}
