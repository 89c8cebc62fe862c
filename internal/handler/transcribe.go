package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/audit"
	"github.com/voicegate/stt-gateway-api/internal/domain/usage"
	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/handler/middleware"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/metrics"
	"github.com/voicegate/stt-gateway-api/internal/service"
	"github.com/voicegate/stt-gateway-api/internal/stt"
)

// TranscribeHandler serves both transcription entry points. The anonymous
// one returns the legacy public shape with the raw vendor payload attached;
// the protected one returns the compact billing shape.
type TranscribeHandler struct {
	transcriptions *service.TranscriptionService
	recorder       *audit.Recorder
	logger         *zap.Logger
}

func NewTranscribeHandler(transcriptions *service.TranscriptionService, recorder *audit.Recorder, logger *zap.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		transcriptions: transcriptions,
		recorder:       recorder,
		logger:         logger.Named("TranscribeHandler"),
	}
}

// Anonymous handles POST /transcribe.
func (h *TranscribeHandler) Anonymous(c *gin.Context) {
	in, err := h.parseRequest(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	in.UserUUID = ""

	started := time.Now()
	out, err := h.transcriptions.Transcribe(c.Request.Context(), *in)
	h.recordUsage(c, usage.AnonymousCaller, "", started, err)
	if err != nil {
		metrics.TranscriptionRequests.WithLabelValues(c.FullPath(), "error").Inc()
		_ = c.Error(err)
		return
	}
	metrics.TranscriptionRequests.WithLabelValues(c.FullPath(), "ok").Inc()

	resp := dto.AnonymousTranscriptionResponse{
		RequestID:        out.RequestID,
		Status:           "completed",
		STTMessage:       out.Text,
		STTSummary:       out.Summary,
		ServiceName:      out.ServiceUsed,
		ProcessingTime:   out.ProcessingTime,
		OriginalResponse: out.Raw,
	}
	if out.ServiceUsed == stt.ServiceTiro {
		resp.TiroSummary = out.ProviderSummary
	}
	c.JSON(http.StatusOK, resp)
}

// Protected handles POST /transcribe/protected behind API key auth.
func (h *TranscribeHandler) Protected(c *gin.Context) {
	key := middleware.GetAPIKey(c)
	if key == nil {
		_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
		return
	}

	in, err := h.parseRequest(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	in.UserUUID = key.UserUUID

	started := time.Now()
	out, err := h.transcriptions.Transcribe(c.Request.Context(), *in)
	h.recordUsage(c, key.UserUUID, key.KeyHash, started, err)
	if err != nil {
		metrics.TranscriptionRequests.WithLabelValues(c.FullPath(), "error").Inc()
		_ = c.Error(err)
		return
	}
	metrics.TranscriptionRequests.WithLabelValues(c.FullPath(), "ok").Inc()

	c.JSON(http.StatusOK, dto.ProtectedTranscriptionResponse{
		Status:               "success",
		Transcription:        out.Text,
		Summary:              out.Summary,
		ServiceUsed:          out.ServiceUsed,
		Duration:             out.Duration,
		ProcessingTime:       out.ProcessingTime,
		AudioDurationMinutes: out.AudioDurationMinutes,
		TokensUsed:           out.TokensUsed,
		UserID:               key.UserUUID,
		Filename:             in.Filename,
		RequestID:            out.RequestID,
		ResponseID:           out.ResponseID,
	})
}

func (h *TranscribeHandler) parseRequest(c *gin.Context) (*service.TranscribeInput, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: audio file is required", ierr.ErrValidation)
	}

	audio, err := readUpload(fileHeader)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.String("filename", fileHeader.Filename), zap.Error(err))
		return nil, fmt.Errorf("%w: reading upload: %v", ierr.ErrInternalServer, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", ierr.ErrValidation)
	}

	in := &service.TranscribeInput{
		Audio:            audio,
		Filename:         fileHeader.Filename,
		PreferredService: formValue(c, "service"),
		FallbackEnabled:  formBool(c, "fallback", true),
		Summarize:        formBool(c, "summarization", true),
		Options: stt.Options{
			Language:           formValue(c, "language"),
			ModelSize:          formValue(c, "model_size"),
			Task:               formValue(c, "task"),
			SpeakerDiarization: formBool(c, "speaker_diarization", false),
		},
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	if raw := formValue(c, "speakers_expected"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: speakers_expected must be a positive integer", ierr.ErrValidation)
		}
		in.Options.SpeakerCountHint = n
	}

	return in, nil
}

func (h *TranscribeHandler) recordUsage(c *gin.Context, ownerUUID, keyHash string, started time.Time, err error) {
	if h.recorder == nil {
		return
	}
	statusCode := http.StatusOK
	if err != nil {
		statusCode = middleware.StatusForError(err)
	}
	h.recorder.Record(&usage.Event{
		UserUUID:       ownerUUID,
		Endpoint:       c.FullPath(),
		Method:         c.Request.Method,
		StatusCode:     statusCode,
		ProcessingTime: time.Since(started).Seconds(),
		ClientIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		APIKeyHash:     keyHash,
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formValue reads a parameter from the multipart form, falling back to the
// query string so simple curl invocations keep working.
func formValue(c *gin.Context, name string) string {
	if v := c.PostForm(name); v != "" {
		return v
	}
	return c.Query(name)
}

func formBool(c *gin.Context, name string, fallback bool) bool {
	raw := formValue(c, name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
