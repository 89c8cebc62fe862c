package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

const (
	authorizationHeader   = "Authorization"
	bearerPrefix          = "Bearer "
	sessionUserContextKey = "sessionUserUUID"
)

// SessionAuthMiddleware guards operator endpoints with the signed session
// token issued by /auth/login.
func SessionAuthMiddleware(credentials *service.CredentialService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("SessionAuthMiddleware")
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeader)
		if authHeader == "" {
			log.Debug("Authorization header is missing")
			_ = c.Error(fmt.Errorf("%w: authorization header required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, bearerPrefix) {
			log.Debug("Authorization header format is invalid")
			_ = c.Error(fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		if tokenString == "" {
			_ = c.Error(fmt.Errorf("%w: token missing", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		userUUID, err := credentials.VerifySession(tokenString)
		if err != nil {
			log.Warn("Session token validation failed", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(sessionUserContextKey, userUUID)
		c.Next()
	}
}

// GetSessionUser returns the user uuid placed in the context by
// SessionAuthMiddleware, or "" when the request is unauthenticated.
func GetSessionUser(c *gin.Context) string {
	value, exists := c.Get(sessionUserContextKey)
	if !exists {
		return ""
	}
	userUUID, ok := value.(string)
	if !ok {
		return ""
	}
	return userUUID
}
