package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/audit"
	"github.com/voicegate/stt-gateway-api/internal/config"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/handler/middleware"
	"github.com/voicegate/stt-gateway-api/internal/service"
	"github.com/voicegate/stt-gateway-api/internal/storage/memstorage"
)

type tokenFixture struct {
	router      *gin.Engine
	credentials *service.CredentialService
	usageRepo   *memstorage.UsageRepository
	session     string
	userUUID    string
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	usageRepo := memstorage.NewUsageRepository()
	recorder := audit.NewRecorder(usageRepo, 64, logger)
	t.Cleanup(recorder.Close)

	credentials := service.NewCredentialService(
		memstorage.NewAPIKeyRepository(),
		memstorage.NewUserRepository(),
		usageRepo,
		config.JWTConfig{Secret: "test-secret", Issuer: "stt-gateway", Validity: time.Hour},
		logger,
	)

	u, err := credentials.Register(context.Background(), "alice", "alice@example.com", "Alice", "A01", "password123", nil)
	require.NoError(t, err)

	session, err := credentials.IssueSession(context.Background(), u.UserUUID)
	require.NoError(t, err)

	apiKeyHandler := NewAPIKeyHandler(credentials, logger)
	authHandler := NewAuthHandler(credentials, logger)
	sessionAuth := middleware.SessionAuthMiddleware(credentials, logger)
	apiKeyAuth := middleware.APIKeyAuthMiddleware(credentials, recorder, logger)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	router.POST("/auth/login", authHandler.Login)
	router.POST("/users", authHandler.Signup)
	tokenRoutes := router.Group("/tokens")
	{
		tokenRoutes.GET("/verify", apiKeyAuth, apiKeyHandler.Verify)
		tokenRoutes.POST("/:label", sessionAuth, apiKeyHandler.Issue)
		tokenRoutes.GET("", sessionAuth, apiKeyHandler.List)
		tokenRoutes.POST("/revoke", sessionAuth, apiKeyHandler.Revoke)
		tokenRoutes.GET("/history", sessionAuth, apiKeyHandler.History)
	}
	router.GET("/api-usage/stats", sessionAuth, apiKeyHandler.Stats)

	return &tokenFixture{
		router:      router,
		credentials: credentials,
		usageRepo:   usageRepo,
		session:     session,
		userUUID:    u.UserUUID,
	}
}

func (fx *tokenFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *tokenFixture) sessionHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + fx.session}
}

func TestTokenIssueEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	t.Run("issues a key and returns the plaintext once", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/tokens/ci-key", map[string]string{"description": "for ci"}, fx.sessionHeader())
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["api_key"], "vg_")
		assert.Equal(t, "ci-key", resp["label"])
		assert.Equal(t, "active", resp["status"])
	})

	t.Run("rejects a duplicate label with 409", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/tokens/ci-key", nil, fx.sessionHeader())
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejects an unauthenticated caller", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/tokens/other", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a malformed label", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/tokens/a", nil, fx.sessionHeader())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTokenListNeverReturnsPlaintext(t *testing.T) {
	fx := newTokenFixture(t)

	issueRec := fx.do(t, http.MethodPost, "/tokens/listed", nil, fx.sessionHeader())
	require.Equal(t, http.StatusCreated, issueRec.Code)

	var issued map[string]any
	require.NoError(t, json.Unmarshal(issueRec.Body.Bytes(), &issued))
	plaintext := issued["api_key"].(string)

	rec := fx.do(t, http.MethodGet, "/tokens", nil, fx.sessionHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), plaintext)

	var keys []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "key_hash")
	assert.Equal(t, "listed", keys[0]["label"])
}

func TestTokenVerifyEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	issued, err := fx.credentials.IssueKey(context.Background(), fx.userUUID, "verify-me", "")
	require.NoError(t, err)

	t.Run("accepts the key via header", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/tokens/verify", nil, map[string]string{"X-API-Key": issued.PlaintextKey})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["valid"])
		assert.Equal(t, "verify-me", resp["label"])
		assert.Equal(t, fx.userUUID, resp["user_uuid"])
	})

	t.Run("accepts the key as a bearer token", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/tokens/verify", nil, map[string]string{"Authorization": "Bearer " + issued.PlaintextKey})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a bogus key", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/tokens/verify", nil, map[string]string{"X-API-Key": "vg_bogus_bogus"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTokenRevokeEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	issued, err := fx.credentials.IssueKey(context.Background(), fx.userUUID, "revoke-me", "")
	require.NoError(t, err)

	rec := fx.do(t, http.MethodPost, "/tokens/revoke", map[string]string{"key_hash": issued.Key.KeyHash}, fx.sessionHeader())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "revoked", resp["status"])

	// The revoked key no longer authenticates.
	verifyRec := fx.do(t, http.MethodGet, "/tokens/verify", nil, map[string]string{"X-API-Key": issued.PlaintextKey})
	assert.Equal(t, http.StatusUnauthorized, verifyRec.Code)
}

func TestTokenHistoryEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	issued, err := fx.credentials.IssueKey(context.Background(), fx.userUUID, "busy-key", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := fx.credentials.VerifyKey(context.Background(), issued.PlaintextKey)
		require.NoError(t, err)
	}

	rec := fx.do(t, http.MethodGet, "/tokens/history?limit=2", nil, fx.sessionHeader())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUsageStatsEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	now := time.Now().UTC()
	for i, status := range []int{200, 200, 404, 200} {
		require.NoError(t, fx.usageRepo.Insert(context.Background(), &usage.Event{
			UserUUID:   fx.userUUID,
			Endpoint:   "/transcribe/protected",
			Method:     "POST",
			StatusCode: status,
			CreatedAt:  now.Add(-time.Duration(i) * time.Minute),
		}))
	}

	rec := fx.do(t, http.MethodGet, "/api-usage/stats?days=7", nil, fx.sessionHeader())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, float64(7), resp["period_days"])
	assert.Equal(t, float64(4), resp["total_requests"])
	assert.Equal(t, float64(3), resp["successful_requests"])
	assert.Equal(t, 75.0, resp["success_rate"])

	endpointStats, ok := resp["endpoint_stats"].([]any)
	require.True(t, ok)
	require.Len(t, endpointStats, 1)

	t.Run("requires session", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/api-usage/stats", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects non-integer days", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/api-usage/stats?days=soon", nil, fx.sessionHeader())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	t.Run("returns a usable session token", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/auth/login", map[string]string{"user_id": "alice", "password": "password123"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		token := resp["access_token"].(string)
		assert.Equal(t, "Bearer", resp["token_type"])

		listRec := fx.do(t, http.MethodGet, "/tokens", nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, listRec.Code)
	})

	t.Run("rejects bad credentials", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/auth/login", map[string]string{"user_id": "alice", "password": "wrong"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSignupEndpoint(t *testing.T) {
	fx := newTokenFixture(t)

	t.Run("creates a user", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/users", map[string]any{
			"user_id":   "bob",
			"email":     "bob@example.com",
			"user_type": "조직",
			"password":  "longenough",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "A02", resp["user_type"])
		assert.NotContains(t, resp, "password_hash")
	})

	t.Run("rejects a duplicate user id", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/users", map[string]any{
			"user_id":  "alice",
			"email":    "alice2@example.com",
			"password": "longenough",
		}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
