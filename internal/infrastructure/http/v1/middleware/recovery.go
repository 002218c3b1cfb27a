// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"crmflow/internal/core/apperror"
	"crmflow/pkg/logger"
)

// Recovery turns a panic into the standard 500 payload. It runs outermost,
// so ErrorHandler has already returned by the time a panic reaches it and
// the response is rendered here.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []any{
				"error", rec,
				"method", c.Request.Method,
				"path", c.FullPath(),
				"stack", string(debug.Stack()),
			}
			if rc := Request(c); rc != nil {
				fields = append(fields, "ip_address", rc.IPAddress, "authenticated", rc.Principal != nil)
			}
			logger.Error(c.Request.Context(), "panic recovered", fields...)

			err := apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
				WithDetail("request_id", c.GetString("request_id"))
			_ = c.Error(err)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			status, body := Render(c, err)
			c.AbortWithStatusJSON(status, body)
		}()
		c.Next()
	}
}
