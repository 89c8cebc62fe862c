package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/config"
)

// DagloProvider drives the Daglo async transcription API: a multipart upload
// returns an rid, which is then polled until the job reports "transcribed".
type DagloProvider struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewDagloProvider(cfg config.DagloConfig, pollInterval time.Duration, logger *zap.Logger) *DagloProvider {
	return &DagloProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		pollInterval: pollInterval,
		httpClient:   &http.Client{},
		logger:       logger.Named("DagloProvider"),
	}
}

var _ Provider = (*DagloProvider)(nil)

func (p *DagloProvider) Name() string { return ServiceDaglo }

func (p *DagloProvider) Configured() bool { return p.apiKey != "" }

func (p *DagloProvider) SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "ogg", "flac", "3gp", "3gpp", "ac3", "aac", "aiff", "amr", "au", "opus", "ra"}
}

func (p *DagloProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error) {
	if !p.Configured() {
		return nil, newProviderError(p.Name(), KindNotConfigured, false, "DAGLO API key not set")
	}

	started := time.Now()

	rid, err := p.upload(ctx, audio, filename, opts)
	if err != nil {
		return nil, err
	}

	raw, err := p.poll(ctx, rid)
	if err != nil {
		return nil, err
	}

	text := extractDagloTranscript(raw)
	duration, _ := raw["duration"].(float64)
	confidence, ok := raw["confidence"].(float64)
	if !ok {
		// Daglo does not report confidence; keep the upstream default.
		confidence = 0.8
	}

	return &Result{
		Text:           text,
		Confidence:     confidence,
		AudioDuration:  duration,
		Language:       opts.LanguageOrDefault(),
		TranscriptID:   rid,
		ProviderName:   p.Name(),
		ProcessingTime: time.Since(started),
		Raw:            raw,
	}, nil
}

func (p *DagloProvider) upload(ctx context.Context, audio []byte, filename string, opts Options) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "building multipart body: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "writing multipart body: %v", err)
	}

	if opts.SpeakerDiarization {
		diarization := map[string]any{"enable": true}
		if opts.SpeakerCountHint > 0 {
			diarization["speakerCountHint"] = opts.SpeakerCountHint
		}
		sttConfig, _ := json.Marshal(map[string]any{"speakerDiarization": diarization})
		if err := mw.WriteField("sttConfig", string(sttConfig)); err != nil {
			return "", newProviderError(p.Name(), KindBadRequest, false, "writing sttConfig field: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "closing multipart body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, &body)
	if err != nil {
		return "", newProviderError(p.Name(), KindBadRequest, false, "building upload request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatusCode(p.Name(), resp.StatusCode, string(payload))
	}

	var uploadResult struct {
		RID string `json:"rid"`
	}
	if err := json.Unmarshal(payload, &uploadResult); err != nil || uploadResult.RID == "" {
		return "", newProviderError(p.Name(), KindMalformedResponse, false, "upload response missing rid")
	}

	p.logger.Debug("Daglo upload accepted", zap.String("rid", uploadResult.RID))
	return uploadResult.RID, nil
}

func (p *DagloProvider) poll(ctx context.Context, rid string) (map[string]any, error) {
	resultURL := fmt.Sprintf("%s/%s", p.baseURL, rid)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		raw, status, err := p.fetchResult(ctx, resultURL)
		if err != nil {
			return nil, err
		}

		switch status {
		case "transcribed":
			return raw, nil
		case "failed", "error":
			return nil, newProviderError(p.Name(), KindVendorError, true, "transcription job ended in state %q", status)
		}

		select {
		case <-ctx.Done():
			return nil, newProviderError(p.Name(), KindTimeout, true, "gave up polling rid %s: %v", rid, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *DagloProvider) fetchResult(ctx context.Context, resultURL string) (map[string]any, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, "", newProviderError(p.Name(), KindBadRequest, false, "building poll request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, "", classifyStatusCode(p.Name(), resp.StatusCode, string(payload))
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, "", newProviderError(p.Name(), KindMalformedResponse, false, "poll response is not JSON: %v", err)
	}

	status, _ := raw["status"].(string)
	return raw, status, nil
}

// extractDagloTranscript digs the transcript out of sttResults, falling back
// to the flat text field older job payloads carry.
func extractDagloTranscript(raw map[string]any) string {
	switch results := raw["sttResults"].(type) {
	case []any:
		if len(results) > 0 {
			if first, ok := results[0].(map[string]any); ok {
				if transcript, ok := first["transcript"].(string); ok {
					return transcript
				}
			}
		}
	case map[string]any:
		if transcript, ok := results["transcript"].(string); ok {
			return transcript
		}
	}
	text, _ := raw["text"].(string)
	return text
}
