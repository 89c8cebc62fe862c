package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/config"
)

// WhisperProvider talks to a self-hosted fast-whisper transcription server.
// Unlike the SaaS vendors it answers synchronously: one multipart POST
// returns the finished transcript with segments.
type WhisperProvider struct {
	baseURL          string
	defaultModelSize string
	httpClient       *http.Client
	logger           *zap.Logger
}

func NewWhisperProvider(cfg config.WhisperConfig, logger *zap.Logger) *WhisperProvider {
	return &WhisperProvider{
		baseURL:          strings.TrimSuffix(cfg.BaseURL, "/"),
		defaultModelSize: cfg.ModelSize,
		httpClient:       &http.Client{},
		logger:           logger.Named("WhisperProvider"),
	}
}

var _ Provider = (*WhisperProvider)(nil)

func (p *WhisperProvider) Name() string { return ServiceWhisper }

func (p *WhisperProvider) Configured() bool { return p.baseURL != "" }

func (p *WhisperProvider) SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "flac", "ogg", "webm"}
}

func (p *WhisperProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error) {
	if !p.Configured() {
		return nil, newProviderError(p.Name(), KindNotConfigured, false, "whisper server URL not set")
	}

	started := time.Now()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, newProviderError(p.Name(), KindBadRequest, false, "building multipart body: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, newProviderError(p.Name(), KindBadRequest, false, "writing multipart body: %v", err)
	}

	modelSize := opts.ModelSize
	if modelSize == "" {
		modelSize = p.defaultModelSize
	}
	task := opts.Task
	if task == "" {
		task = "transcribe"
	}

	_ = mw.WriteField("model_size", modelSize)
	_ = mw.WriteField("task", task)
	_ = mw.WriteField("language", whisperLanguage(opts.LanguageOrDefault()))

	if err := mw.Close(); err != nil {
		return nil, newProviderError(p.Name(), KindBadRequest, false, "closing multipart body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, newProviderError(p.Name(), KindBadRequest, false, "building request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusCode(p.Name(), resp.StatusCode, string(payload))
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, newProviderError(p.Name(), KindMalformedResponse, false, "response is not JSON: %v", err)
	}

	text, _ := raw["text"].(string)
	duration, _ := raw["duration"].(float64)
	language := opts.LanguageOrDefault()
	if detected, ok := raw["language"].(string); ok && detected != "" {
		language = detected
	}
	confidence, ok := raw["language_probability"].(float64)
	if !ok {
		confidence = 1.0
	}

	p.logger.Debug("Whisper transcription finished",
		zap.String("model_size", modelSize),
		zap.Int("text_length", len(text)),
	)

	return &Result{
		Text:           text,
		Confidence:     confidence,
		AudioDuration:  duration,
		Language:       language,
		ProviderName:   p.Name(),
		ProcessingTime: time.Since(started),
		Raw:            raw,
	}, nil
}

// whisperLanguage strips region subtags: the whisper server wants "ko", not
// "ko_KR".
func whisperLanguage(code string) string {
	if i := strings.IndexAny(code, "_-"); i > 0 {
		return code[:i]
	}
	return code
}
