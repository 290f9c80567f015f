package common

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"inkwell/apperror"
)

// ErrorHandler is the single place errors become responses. Handlers and
// middleware record failures with c.Error and return; the last recorded error
// is rendered once the chain unwinds. In production internal causes are
// logged but never sent to the client.
func ErrorHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		renderError(c, c.Errors.Last().Err, production)
	}
}

func renderError(c *gin.Context, err error, production bool) {
	e := apperror.From(err)
	status := e.Kind.Status()

	if e.Kind == apperror.KindInternal {
		slog.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
	} else {
		slog.Debug("Request rejected",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"kind", e.Kind.String(),
			"error", err)
	}

	if c.Writer.Written() {
		return
	}

	message := e.Message
	if e.Kind == apperror.KindInternal && production {
		message = "Internal server error"
	}

	body := gin.H{
		"error":      message,
		"statusCode": status,
	}
	if len(e.Fields) > 0 {
		body["errors"] = e.Fields
	}
	if e.Reason != "" {
		body["reason"] = e.Reason
	}
	if !production {
		details := gin.H{"kind": e.Kind.String()}
		if e.Err != nil {
			details["cause"] = e.Err.Error()
		}
		body["details"] = details
	}

	c.AbortWithStatusJSON(status, body)
}

// Recovery turns panics into internal errors rendered by ErrorHandler.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		_ = c.Error(apperror.Internal("Internal server error", fmt.Errorf("panic: %v", rec)))
		c.Abort()
	})
}

// NotFoundHandler answers unmatched routes.
func NotFoundHandler(c *gin.Context) {
	_ = c.Error(apperror.NotFound(fmt.Sprintf("Cannot %s %s", c.Request.Method, c.Request.URL.Path)))
}

// BindJSON decodes the request body into dst. Malformed bodies become a
// ValidationError.
func BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperror.Validation("Invalid request body",
			apperror.FieldError{Field: "body", Message: err.Error()})
	}
	return nil
}

// Fail records err and stops the handler chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
