package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/transcription"
	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/handler/middleware"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

// TranscriptionHandler serves the persisted request/response history.
type TranscriptionHandler struct {
	transcriptions *service.TranscriptionService
	logger         *zap.Logger
}

func NewTranscriptionHandler(transcriptions *service.TranscriptionService, logger *zap.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		transcriptions: transcriptions,
		logger:         logger.Named("TranscriptionHandler"),
	}
}

// List handles GET /transcriptions?limit=N for the session owner.
func (h *TranscriptionHandler) List(c *gin.Context) {
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

	requests, err := h.transcriptions.ListRequests(c.Request.Context(), ownerUUID, limit)
	if err != nil {
		h.logger.Error("Service failed to list transcription requests", zap.Error(err))
		_ = c.Error(err)
		return
	}

	resp := make([]dto.TranscriptionRequestItem, len(requests))
	for i, req := range requests {
		resp[i] = toRequestItem(req)
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /transcriptions/:request_id.
func (h *TranscriptionHandler) Get(c *gin.Context) {
	ownerUUID := middleware.GetSessionUser(c)
	if ownerUUID == "" {
		_ = c.Error(fmt.Errorf("%w: session required", ierr.ErrUnauthorized))
		return
	}

	requestID := c.Param("request_id")
	req, resp, err := h.transcriptions.GetRequestDetail(c.Request.Context(), requestID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if req.UserUUID != ownerUUID {
		_ = c.Error(fmt.Errorf("%w: request %q belongs to another account", ierr.ErrForbidden, requestID))
		return
	}

	detail := dto.TranscriptionDetailResponse{Request: toRequestItem(req)}
	if resp != nil {
		detail.Response = &dto.TranscriptionResponseItem{
			ResponseID:           resp.ResponseID,
			TranscriptionText:    resp.TranscriptionText,
			SummaryText:          resp.SummaryText,
			ConfidenceScore:      resp.ConfidenceScore,
			ServiceProvider:      resp.ServiceProvider,
			Duration:             resp.Duration,
			ProcessingTime:       resp.ProcessingTime,
			LanguageDetected:     resp.LanguageDetected,
			AudioDurationMinutes: resp.AudioDurationMinutes,
			TokensUsed:           resp.TokensUsed,
			CreatedAt:            resp.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, detail)
}

func toRequestItem(req *transcription.Request) dto.TranscriptionRequestItem {
	return dto.TranscriptionRequestItem{
		RequestID:        req.RequestID,
		Filename:         req.Filename,
		FileSize:         req.FileSize,
		ServiceRequested: req.ServiceRequested,
		Language:         req.Language,
		Status:           string(req.Status),
		ProcessingTime:   req.ProcessingTime,
		CreatedAt:        req.CreatedAt,
	}
}
