package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

// ServicesHandler exposes the provider inventory so clients can discover
// which vendors this deployment can dispatch to.
type ServicesHandler struct {
	transcriptions *service.TranscriptionService
	defaultService string
	logger         *zap.Logger
}

func NewServicesHandler(transcriptions *service.TranscriptionService, defaultService string, logger *zap.Logger) *ServicesHandler {
	return &ServicesHandler{
		transcriptions: transcriptions,
		defaultService: defaultService,
		logger:         logger.Named("ServicesHandler"),
	}
}

func (h *ServicesHandler) List(c *gin.Context) {
	names := h.transcriptions.AvailableServices()
	resp := make([]dto.ServiceInfoResponse, 0, len(names))
	for _, name := range names {
		info, ok := h.transcriptions.ServiceInfo(name)
		if !ok {
			continue
		}
		resp = append(resp, dto.ServiceInfoResponse{
			Name:             info.Name,
			SupportedFormats: info.SupportedFormats,
			IsConfigured:     info.Configured,
			IsDefault:        name == h.defaultService,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"services":        resp,
		"default_service": h.defaultService,
	})
}
