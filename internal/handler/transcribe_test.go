package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
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
	"github.com/voicegate/stt-gateway-api/internal/stt"
)

type stubProvider struct {
	name   string
	result *stt.Result
	err    error
}

func (p *stubProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts stt.Options) (*stt.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	res := *p.result
	res.ProviderName = p.name
	return &res, nil
}

func (p *stubProvider) Name() string               { return p.name }
func (p *stubProvider) Configured() bool           { return true }
func (p *stubProvider) SupportedFormats() []string { return []string{"mp3", "wav"} }

type stubSummarizer struct {
	text   string
	tokens int
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, int, error) {
	return s.text, s.tokens, nil
}

func (s *stubSummarizer) Configured() bool { return s.text != "" }

type gatewayFixture struct {
	router      *gin.Engine
	credentials *service.CredentialService
	usageRepo   *memstorage.UsageRepository
	recorder    *audit.Recorder
}

func newGatewayFixture(t *testing.T, summarizer *stubSummarizer, providers ...stt.Provider) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	dispatcher := stt.NewDispatcher(providers, names[0], names, time.Minute, logger)

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
	transcriptions := service.NewTranscriptionService(dispatcher, summarizer, memstorage.NewTranscriptionRepository(), logger)

	transcribeHandler := NewTranscribeHandler(transcriptions, recorder, logger)
	apiKeyAuth := middleware.APIKeyAuthMiddleware(credentials, recorder, logger)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	router.POST("/transcribe", transcribeHandler.Anonymous)
	router.POST("/transcribe/protected", apiKeyAuth, transcribeHandler.Protected)

	return &gatewayFixture{
		router:      router,
		credentials: credentials,
		usageRepo:   usageRepo,
		recorder:    recorder,
	}
}

func multipartAudio(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-audio-bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestTranscribeAnonymousShape(t *testing.T) {
	provider := &stubProvider{
		name: stt.ServiceDaglo,
		result: &stt.Result{
			Text:       "안녕하세요 회의록입니다",
			Confidence: 0.8,
			Language:   "ko",
			Raw:        map[string]any{"rid": "abc123"},
		},
	}
	fx := newGatewayFixture(t, &stubSummarizer{text: "요약", tokens: 10}, provider)

	body, contentType := multipartAudio(t, "meeting.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Contains(t, resp, "user_id")
	require.Contains(t, resp, "email")
	assert.Nil(t, resp["user_id"])
	assert.Nil(t, resp["email"])
	assert.Equal(t, "completed", resp["status"])
	assert.Equal(t, "안녕하세요 회의록입니다", resp["stt_message"])
	assert.Equal(t, "요약", resp["stt_summary"])
	assert.Equal(t, stt.ServiceDaglo, resp["service_name"])
	assert.Contains(t, resp, "processing_time")
	assert.Contains(t, resp, "original_response")
	assert.NotContains(t, resp, "tiro_summary")
}

func TestTranscribeAnonymousTiroSummary(t *testing.T) {
	provider := &stubProvider{
		name: stt.ServiceTiro,
		result: &stt.Result{
			Text:    "내용",
			Summary: "티로가 만든 요약",
		},
	}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	body, contentType := multipartAudio(t, "call.wav", map[string]string{"service": stt.ServiceTiro})
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "티로가 만든 요약", resp["tiro_summary"])
}

func TestTranscribeProtectedShape(t *testing.T) {
	provider := &stubProvider{
		name: stt.ServiceDaglo,
		result: &stt.Result{
			Text:          "transcribed text",
			AudioDuration: 180,
		},
	}
	fx := newGatewayFixture(t, &stubSummarizer{text: "summary", tokens: 7}, provider)

	issued, err := fx.credentials.IssueKey(context.Background(), "owner-1", "prod-key", "")
	require.NoError(t, err)

	body, contentType := multipartAudio(t, "interview.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/protected", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", issued.PlaintextKey)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "transcribed text", resp["transcription"])
	assert.Equal(t, "summary", resp["summary"])
	assert.Equal(t, stt.ServiceDaglo, resp["service_used"])
	assert.Equal(t, 3.0, resp["audio_duration_minutes"])
	assert.Equal(t, float64(7), resp["tokens_used"])
	assert.Equal(t, "owner-1", resp["user_id"])
	assert.Equal(t, "interview.mp3", resp["filename"])
	assert.Contains(t, resp, "request_id")
	assert.Contains(t, resp, "response_id")

	// The credentialed shape never leaks the vendor payload.
	assert.NotContains(t, resp, "original_response")
}

func TestTranscribeProtectedRequiresKey(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	body, contentType := multipartAudio(t, "a.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/protected", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTranscribeProtectedRejectsRevokedKey(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	issued, err := fx.credentials.IssueKey(context.Background(), "owner-1", "doomed", "")
	require.NoError(t, err)
	_, err = fx.credentials.RevokeKey(context.Background(), issued.Key.KeyHash, "owner-1")
	require.NoError(t, err)

	body, contentType := multipartAudio(t, "a.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/protected", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", issued.PlaintextKey)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTranscribeRejectsUnsupportedFormat(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	body, contentType := multipartAudio(t, "notes.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp["code"])
}

func TestTranscribeMissingFile(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeExhaustedChainIsBadGateway(t *testing.T) {
	provider := &stubProvider{
		name: stt.ServiceDaglo,
		err:  context.DeadlineExceeded,
	}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	body, contentType := multipartAudio(t, "a.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ALL_PROVIDERS_FAILED", resp["code"])
}

func TestTranscribeUsageRecordsRejectionStatus(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	body, contentType := multipartAudio(t, "notes.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	fx.recorder.Close()

	events, err := fx.usageRepo.ListByOwner(context.Background(), usage.AnonymousCaller, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, http.StatusBadRequest, events[0].StatusCode)
}

func TestTranscribeRecordsUsage(t *testing.T) {
	provider := &stubProvider{name: stt.ServiceDaglo, result: &stt.Result{Text: "x"}}
	fx := newGatewayFixture(t, &stubSummarizer{}, provider)

	issued, err := fx.credentials.IssueKey(context.Background(), "owner-1", "audited", "")
	require.NoError(t, err)

	body, contentType := multipartAudio(t, "a.mp3", nil)
	req := httptest.NewRequest(http.MethodPost, "/transcribe/protected", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", issued.PlaintextKey)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	fx.recorder.Close()

	events, err := fx.usageRepo.ListByOwner(context.Background(), "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/transcribe/protected", events[0].Endpoint)
	assert.Equal(t, issued.Key.KeyHash, events[0].APIKeyHash)
	assert.Equal(t, http.StatusOK, events[0].StatusCode)
}
