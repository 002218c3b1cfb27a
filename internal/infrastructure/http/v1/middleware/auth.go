package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "crmflow/internal/core/context"
	"crmflow/pkg/logger"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.Principal, error)
}

// Auth attaches the principal of a valid bearer token to the request
// context. It never rejects: a missing or invalid token leaves the request
// anonymous and the authentication guard decides.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := appctx.GetRequest(c.Request.Context())
		if rc == nil {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		principal, err := validator.ValidateToken(token)
		if err != nil {
			logger.Debug(c.Request.Context(), "bearer token rejected", "error", err)
			c.Next()
			return
		}

		rc.Principal = principal
		c.Set("user_id", principal.ID.String())
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
