package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/platformbuilds/workcell-kpi/internal/kpi"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeTimeout         = "TIMEOUT"
	CodeRetrievalFailed = "RETRIEVAL_FAILED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeNotFound        = "NOT_FOUND"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string        `json:"error"`
	Code      string        `json:"code,omitempty"`
	Details   []FieldDetail `json:"details,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// FieldDetail names one rejected request parameter.
type FieldDetail struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ErrorHandler turns the last error attached by a handler into the JSON
// error body. Store text never reaches the client; it is logged instead.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			if c.Writer.Status() == http.StatusNotFound && !c.Writer.Written() {
				c.JSON(http.StatusNotFound, ErrorResponse{
					Error:     "route not found",
					Code:      CodeNotFound,
					RequestID: c.GetString(RequestIDKey),
				})
			}
			return
		}
		if c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		err := last.Err
		bind := last.IsType(gin.ErrorTypeBind)
		statusCode, code := classify(err, bind)
		resp := ErrorResponse{
			Error:     publicMessage(err, bind),
			Code:      code,
			Details:   extractValidationDetails(err),
			RequestID: c.GetString(RequestIDKey),
		}

		logError(log, statusCode, err, c)
		c.AbortWithStatusJSON(statusCode, resp)
	}
}

func classify(err error, bind bool) (int, string) {
	var ve validator.ValidationErrors
	switch {
	case bind, errors.As(err, &ve), kpi.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidRequest
	case kpi.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case kpi.IsRetrieval(err):
		return http.StatusInternalServerError, CodeRetrievalFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func publicMessage(err error, bind bool) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return "invalid " + ve[0].Field()
	}
	if bind {
		return "invalid request parameters"
	}
	if errors.Is(err, context.DeadlineExceeded) && !kpi.IsRetrieval(err) {
		return "request timed out"
	}
	return kpi.PublicMessage(err)
}

func extractValidationDetails(err error) []FieldDetail {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]FieldDetail, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldDetail{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

func logError(log logger.Logger, statusCode int, err error, c *gin.Context) {
	fields := []interface{}{
		"status", statusCode,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client_ip", c.ClientIP(),
		"error", err.Error(),
	}
	if requestID := c.GetString(RequestIDKey); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if statusCode >= 500 {
		log.Error("HTTP Error", fields...)
	} else {
		log.Warn("HTTP Error", fields...)
	}
}

// NoStore marks API responses as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
