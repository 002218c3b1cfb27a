package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "crmflow/internal/core/context"
)

// RequestContext builds the guard request context from the gin request and
// stores it in the request context. It must run before Auth and every guard.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := &appctx.RequestContext{
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			OriginalURL: c.Request.URL.RequestURI(),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Params:      make(map[string]string, len(c.Params)),
		}
		for _, p := range c.Params {
			rc.Params[p.Key] = p.Value
		}

		c.Request = c.Request.WithContext(appctx.WithRequest(c.Request.Context(), rc))
		c.Next()
	}
}

// Request returns the guard request context of c.
func Request(c *gin.Context) *appctx.RequestContext {
	return appctx.GetRequest(c.Request.Context())
}
