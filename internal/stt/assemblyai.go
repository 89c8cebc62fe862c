package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/config"
)

// AssemblyAIProvider runs the three-step AssemblyAI flow: raw-byte upload,
// transcript job submission, then polling until the job completes.
type AssemblyAIProvider struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewAssemblyAIProvider(cfg config.AssemblyAIConfig, pollInterval time.Duration, logger *zap.Logger) *AssemblyAIProvider {
	return &AssemblyAIProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		pollInterval: pollInterval,
		httpClient:   &http.Client{},
		logger:       logger.Named("AssemblyAIProvider"),
	}
}

var _ Provider = (*AssemblyAIProvider)(nil)

func (p *AssemblyAIProvider) Name() string { return ServiceAssemblyAI }

func (p *AssemblyAIProvider) Configured() bool { return p.apiKey != "" }

func (p *AssemblyAIProvider) SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "flac", "ogg", "aac", "aiff", "au", "opus"}
}

func (p *AssemblyAIProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error) {
	if !p.Configured() {
		return nil, newProviderError(p.Name(), KindNotConfigured, false, "ASSEMBLYAI API key not set")
	}

	started := time.Now()

	audioURL, err := p.upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	transcriptID, err := p.submit(ctx, audioURL, opts)
	if err != nil {
		return nil, err
	}

	raw, err := p.poll(ctx, transcriptID)
	if err != nil {
		return nil, err
	}

	text, _ := raw["text"].(string)
	confidence, _ := raw["confidence"].(float64)
	var audioDuration float64
	if seconds, ok := raw["audio_duration"].(float64); ok {
		audioDuration = seconds
	}
	language := opts.LanguageOrDefault()
	if detected, ok := raw["language_code"].(string); ok && detected != "" {
		language = detected
	}

	return &Result{
		Text:           text,
		Confidence:     confidence,
		AudioDuration:  audioDuration,
		Language:       language,
		TranscriptID:   transcriptID,
		ProviderName:   p.Name(),
		ProcessingTime: time.Since(started),
		Raw:            raw,
	}, nil
}

func (p *AssemblyAIProvider) upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "building upload request: %v", err)
	}
	req.Header.Set("authorization", p.apiKey)
	req.Header.Set("content-type", "application/octet-stream")

	raw, err := p.do(req)
	if err != nil {
		return "", err
	}

	uploadURL, _ := raw["upload_url"].(string)
	if uploadURL == "" {
		return "", newProviderError(p.Name(), KindMalformedResponse, false, "upload response missing upload_url")
	}
	return uploadURL, nil
}

func (p *AssemblyAIProvider) submit(ctx context.Context, audioURL string, opts Options) (string, error) {
	payload := map[string]any{
		"audio_url":     audioURL,
		"language_code": opts.LanguageOrDefault(),
	}
	if opts.SpeakerDiarization {
		payload["speaker_labels"] = true
		if opts.SpeakerCountHint > 0 {
			payload["speakers_expected"] = opts.SpeakerCountHint
		}
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "building submit request: %v", err)
	}
	req.Header.Set("authorization", p.apiKey)
	req.Header.Set("content-type", "application/json")

	raw, err := p.do(req)
	if err != nil {
		return "", err
	}

	id, _ := raw["id"].(string)
	if id == "" {
		return "", newProviderError(p.Name(), KindMalformedResponse, false, "submit response missing transcript id")
	}

	p.logger.Debug("AssemblyAI transcript job submitted", zap.String("transcript_id", id))
	return id, nil
}

func (p *AssemblyAIProvider) poll(ctx context.Context, transcriptID string) (map[string]any, error) {
	pollURL := fmt.Sprintf("%s/transcript/%s", p.baseURL, transcriptID)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, newProviderError(p.Name(), KindBadRequest, false, "building poll request: %v", err)
		}
		req.Header.Set("authorization", p.apiKey)

		raw, err := p.do(req)
		if err != nil {
			return nil, err
		}

		switch status, _ := raw["status"].(string); status {
		case "completed":
			return raw, nil
		case "error":
			message, _ := raw["error"].(string)
			return nil, newProviderError(p.Name(), KindVendorError, true, "transcript job failed: %s", message)
		}

		select {
		case <-ctx.Done():
			return nil, newProviderError(p.Name(), KindTimeout, true, "gave up polling transcript %s: %v", transcriptID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *AssemblyAIProvider) do(req *http.Request) (map[string]any, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusCode(p.Name(), resp.StatusCode, string(payload))
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, newProviderError(p.Name(), KindMalformedResponse, false, "response is not JSON: %v", err)
	}
	return raw, nil
}
