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

// TiroProvider runs the Tiro voice-file workflow: create a job, PUT the
// audio to the returned upload URI, signal upload completion, poll the job,
// then collect the transcript. Tiro is the one vendor that returns its own
// summary alongside the transcript.
type TiroProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewTiroProvider(cfg config.TiroConfig, logger *zap.Logger) *TiroProvider {
	return &TiroProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.Named("TiroProvider"),
	}
}

var _ Provider = (*TiroProvider)(nil)

func (p *TiroProvider) Name() string { return ServiceTiro }

func (p *TiroProvider) Configured() bool { return p.apiKey != "" }

func (p *TiroProvider) SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "flac", "ogg"}
}

func (p *TiroProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error) {
	if !p.Configured() {
		return nil, newProviderError(p.Name(), KindNotConfigured, false, "TIRO API key not set")
	}

	started := time.Now()

	jobID, uploadURI, err := p.createJob(ctx, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Tiro job created", zap.String("job_id", jobID))

	if err := p.uploadAudio(ctx, uploadURI, audio); err != nil {
		return nil, err
	}
	if err := p.notifyUploadComplete(ctx, jobID); err != nil {
		return nil, err
	}
	if err := p.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	transcript, err := p.getJSON(ctx, fmt.Sprintf("%s/jobs/%s/transcript", p.baseURL, jobID))
	if err != nil {
		return nil, err
	}

	text, _ := transcript["text"].(string)
	summary, _ := transcript["summary"].(string)

	return &Result{
		Text:    text,
		Summary: summary,
		// Tiro reports neither confidence nor audio duration.
		Confidence:     0.9,
		Language:       opts.LanguageOrDefault(),
		TranscriptID:   jobID,
		ProviderName:   p.Name(),
		ProcessingTime: time.Since(started),
		Raw:            map[string]any{"transcript": transcript},
	}, nil
}

func (p *TiroProvider) createJob(ctx context.Context, opts Options) (jobID, uploadURI string, err error) {
	payload := map[string]any{
		"transcriptLocaleHints": []string{tiroLocale(opts.LanguageOrDefault())},
	}
	body, _ := json.Marshal(payload)

	raw, err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/jobs", bytes.NewReader(body), "application/json")
	if err != nil {
		return "", "", err
	}

	jobID, _ = raw["id"].(string)
	uploadURI, _ = raw["uploadUri"].(string)
	if jobID == "" || uploadURI == "" {
		return "", "", newProviderError(p.Name(), KindMalformedResponse, false, "job response missing id or uploadUri")
	}
	return jobID, uploadURI, nil
}

func (p *TiroProvider) uploadAudio(ctx context.Context, uploadURI string, audio []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURI, bytes.NewReader(audio))
	if err != nil {
		return newProviderError(p.Name(), KindBadRequest, false, "building upload request: %v", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return classifyStatusCode(p.Name(), resp.StatusCode, string(body))
	}
	return nil
}

func (p *TiroProvider) notifyUploadComplete(ctx context.Context, jobID string) error {
	_, err := p.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/jobs/%s/upload-complete", p.baseURL, jobID), nil, "")
	return err
}

func (p *TiroProvider) waitForJob(ctx context.Context, jobID string) error {
	// Exponential backoff from 1s to 10s, the cadence the vendor documents.
	interval := time.Second
	const maxInterval = 10 * time.Second

	for {
		raw, err := p.getJSON(ctx, fmt.Sprintf("%s/jobs/%s", p.baseURL, jobID))
		if err != nil {
			return err
		}

		switch status, _ := raw["status"].(string); status {
		case "TRANSCRIPT_COMPLETED", "TRANSLATION_COMPLETED":
			return nil
		case "FAILED":
			return newProviderError(p.Name(), KindVendorError, true, "job %s failed", jobID)
		}

		select {
		case <-ctx.Done():
			return newProviderError(p.Name(), KindTimeout, true, "gave up polling job %s: %v", jobID, ctx.Err())
		case <-time.After(interval):
		}
		if interval *= 2; interval > maxInterval {
			interval = maxInterval
		}
	}
}

func (p *TiroProvider) getJSON(ctx context.Context, url string) (map[string]any, error) {
	return p.doJSON(ctx, http.MethodGet, url, nil, "")
}

func (p *TiroProvider) doJSON(ctx context.Context, method, url string, body io.Reader, contentType string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, newProviderError(p.Name(), KindBadRequest, false, "building %s request: %v", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode >= 300 {
		return nil, classifyStatusCode(p.Name(), resp.StatusCode, string(payload))
	}

	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, newProviderError(p.Name(), KindMalformedResponse, false, "response is not JSON: %v", err)
	}
	return raw, nil
}

func tiroLocale(language string) string {
	switch language {
	case "en":
		return "en_US"
	default:
		return "ko_KR"
	}
}
