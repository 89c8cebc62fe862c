package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/apikey"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/handler/middleware"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

type APIKeyHandler struct {
	credentials *service.CredentialService
	logger      *zap.Logger
}

func NewAPIKeyHandler(credentials *service.CredentialService, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		credentials: credentials,
		logger:      logger.Named("APIKeyHandler"),
	}
}

// Issue handles POST /tokens/:label. The label rides in the path, the
// optional description in the body.
func (h *APIKeyHandler) Issue(c *gin.Context) {
	label := c.Param("label")
	ownerUUID := middleware.GetSessionUser(c)
	if ownerUUID == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	var req dto.IssueAPIKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Failed to bind issue api key request", zap.Error(err))
			_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
			return
		}
	}

	issued, err := h.credentials.IssueKey(c.Request.Context(), ownerUUID, label, req.Description)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key issued via handler", zap.String("label", label), zap.String("prefix", issued.Key.Prefix))
	c.JSON(http.StatusCreated, dto.IssueAPIKeyResponse{
		APIKey:      issued.PlaintextKey,
		Prefix:      issued.Key.Prefix,
		Label:       issued.Key.Label,
		Description: issued.Key.Description,
		Status:      string(issued.Key.Status),
		CreatedAt:   issued.Key.CreatedAt,
	})
}

// List handles GET /tokens. Plaintext keys are gone for good at this point;
// only hashes and metadata come back.
func (h *APIKeyHandler) List(c *gin.Context) {
	ownerUUID := middleware.GetSessionUser(c)
	if ownerUUID == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	keys, err := h.credentials.ListKeys(c.Request.Context(), ownerUUID)
	if err != nil {
		h.logger.Error("Service failed to list api keys", zap.Error(err))
		_ = c.Error(err)
		return
	}

	resp := make([]dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		resp[i] = toAPIKeyResponse(key)
	}
	c.JSON(http.StatusOK, resp)
}

// Verify handles GET /tokens/verify. Reaching the handler at all means the
// auth middleware accepted the key, so this just echoes its metadata.
func (h *APIKeyHandler) Verify(c *gin.Context) {
	key := middleware.GetAPIKey(c)
	if key == nil {
		_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
		return
	}

	c.JSON(http.StatusOK, dto.VerifyAPIKeyResponse{
		Valid:      true,
		Prefix:     key.Prefix,
		Label:      key.Label,
		UserUUID:   key.UserUUID,
		UsageCount: key.UsageCount,
	})
}

// Revoke handles POST /tokens/revoke. The body carries the key hash, never
// the plaintext key.
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	ownerUUID := middleware.GetSessionUser(c)
	if ownerUUID == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	var req dto.RevokeAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind revoke api key request", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	key, err := h.credentials.RevokeKey(c.Request.Context(), req.KeyHash, ownerUUID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key revoked via handler", zap.String("prefix", key.Prefix))
	c.JSON(http.StatusOK, toAPIKeyResponse(key))
}

// History handles GET /tokens/history?limit=N.
func (h *APIKeyHandler) History(c *gin.Context) {
	ownerUUID := middleware.GetSessionUser(c)
	if ownerUUID == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: limit must be an integer", ierr.ErrValidation))
			return
		}
		limit = parsed
	}

	events, err := h.credentials.UsageHistory(c.Request.Context(), ownerUUID, limit)
	if err != nil {
		h.logger.Error("Service failed to list usage history", zap.Error(err))
		_ = c.Error(err)
		return
	}

	resp := make([]dto.UsageEventResponse, len(events))
	for i, e := range events {
		resp[i] = toUsageEventResponse(e)
	}
	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /api-usage/stats?days=N, a windowed aggregate over the
// usage log.
func (h *APIKeyHandler) Stats(c *gin.Context) {
	if middleware.GetSessionUser(c) == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: days must be an integer", ierr.ErrValidation))
			return
		}
		days = parsed
	}

	stats, periodDays, err := h.credentials.UsageStats(c.Request.Context(), days)
	if err != nil {
		h.logger.Error("Service failed to aggregate usage stats", zap.Error(err))
		_ = c.Error(err)
		return
	}

	resp := dto.UsageStatsResponse{
		Status:             "success",
		PeriodDays:         periodDays,
		TotalRequests:      stats.TotalRequests,
		SuccessfulRequests: stats.SuccessfulRequests,
		EndpointStats:      make([]dto.EndpointStatResponse, len(stats.Endpoints)),
	}
	if stats.TotalRequests > 0 {
		resp.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests) * 100
	}
	for i, stat := range stats.Endpoints {
		resp.EndpointStats[i] = dto.EndpointStatResponse{
			Endpoint:          stat.Endpoint,
			RequestCount:      stat.RequestCount,
			AvgProcessingTime: stat.AvgProcessingTime,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func toAPIKeyResponse(key *apikey.APIKey) dto.APIKeyResponse {
	return dto.APIKeyResponse{
		KeyHash:     key.KeyHash,
		Prefix:      key.Prefix,
		Label:       key.Label,
		Description: key.Description,
		Status:      string(key.Status),
		UsageCount:  key.UsageCount,
		CreatedAt:   key.CreatedAt,
		LastUsedAt:  key.LastUsedAt,
		RevokedAt:   key.RevokedAt,
	}
}

func toUsageEventResponse(e *usage.Event) dto.UsageEventResponse {
	return dto.UsageEventResponse{
		Endpoint:       e.Endpoint,
		Method:         e.Method,
		StatusCode:     e.StatusCode,
		ProcessingTime: e.ProcessingTime,
		ClientIP:       e.ClientIP,
		UserAgent:      e.UserAgent,
		CreatedAt:      e.CreatedAt,
	}
}
