package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/config"
)

// Summarizer condenses a transcript through the OpenAI chat-completion API.
// Callers treat every failure as a degraded result, never a request failure.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (summary string, tokensUsed int, err error)
	Configured() bool
}

type OpenAISummarizer struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenAISummarizer(cfg config.SummaryConfig, logger *zap.Logger) *OpenAISummarizer {
	return &OpenAISummarizer{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
		logger:     logger.Named("OpenAISummarizer"),
	}
}

var _ Summarizer = (*OpenAISummarizer)(nil)

func (s *OpenAISummarizer) Configured() bool { return s.apiKey != "" }

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, int, error) {
	if !s.Configured() {
		return "", 0, fmt.Errorf("summarizer not configured")
	}
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("empty text")
	}

	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{
				"role":    "system",
				"content": "You summarize meeting transcripts. Reply with a concise summary in the language of the transcript.",
			},
			{"role": "user", "content": text},
		},
		"max_tokens":  s.maxTokens,
		"temperature": 0.3,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building summary request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("summary request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("summary API returned %d: %s", resp.StatusCode, raw)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("decoding summary response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("summary response has no choices")
	}

	result := strings.TrimSpace(parsed.Choices[0].Message.Content)
	s.logger.Debug("Summary generated",
		zap.Int("input_length", len(text)),
		zap.Int("summary_length", len(result)),
		zap.Int("tokens_used", parsed.Usage.TotalTokens),
	)
	return result, parsed.Usage.TotalTokens, nil
}
