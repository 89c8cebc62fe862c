package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/audit"
	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/metrics"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyContextKey = "apiKeyRecord"
)

// APIKeyAuthMiddleware guards the credentialed endpoints. The key may arrive
// in X-API-Key or as a bearer token; either way only its hash is ever
// compared or logged. Rejections are recorded in the usage log so lockouts
// are diagnosable.
func APIKeyAuthMiddleware(credentials *service.CredentialService, recorder *audit.Recorder, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("APIKeyAuthMiddleware")
	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if presented == "" {
			if header := c.GetHeader(authorizationHeader); strings.HasPrefix(header, bearerPrefix) {
				presented = strings.TrimPrefix(header, bearerPrefix)
			}
		}
		if presented == "" {
			log.Debug("API key is missing", zap.String("header", apiKeyHeader))
			metrics.AuthFailures.WithLabelValues("api_key").Inc()
			_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		key, err := credentials.VerifyKey(c.Request.Context(), presented)
		if err != nil {
			log.Warn("API key validation failed", zap.Error(err))
			metrics.AuthFailures.WithLabelValues("api_key").Inc()
			recordAuthFailure(c, recorder)
			_ = c.Error(err)
			c.Abort()
			return
		}

		log.Debug("API key validated", zap.String("prefix", key.Prefix))
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// GetAPIKey returns the key record placed in the context by
// APIKeyAuthMiddleware, or nil when the request is unauthenticated.
func GetAPIKey(c *gin.Context) *apikey.APIKey {
	value, exists := c.Get(apiKeyContextKey)
	if !exists {
		return nil
	}
	key, ok := value.(*apikey.APIKey)
	if !ok {
		return nil
	}
	return key
}

func recordAuthFailure(c *gin.Context, recorder *audit.Recorder) {
	if recorder == nil {
		return
	}
	recorder.Record(&usage.Event{
		UserUUID:   usage.AnonymousCaller,
		Endpoint:   c.FullPath(),
		Method:     c.Request.Method,
		StatusCode: 401,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
