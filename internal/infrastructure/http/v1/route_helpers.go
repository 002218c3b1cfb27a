package v1

import (
	"github.com/gin-gonic/gin"
)

// chain flattens guard lists and single handlers into one handler chain,
// ending with the route handler.
func chain(parts ...any) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case gin.HandlerFunc:
			out = append(out, v)
		case func(*gin.Context):
			out = append(out, v)
		case []gin.HandlerFunc:
			out = append(out, v...)
		default:
			panic("v1: unsupported handler in route chain")
		}
	}
	return out
}
