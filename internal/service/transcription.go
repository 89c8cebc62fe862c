package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/transcription"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/metrics"
	"github.com/voicegate/stt-gateway-api/internal/stt"
	"github.com/voicegate/stt-gateway-api/internal/summary"
)

// TranscribeInput is one transcription job as seen by the facade, already
// authenticated (or explicitly anonymous).
type TranscribeInput struct {
	UserUUID         string // empty on the anonymous path
	Audio            []byte
	Filename         string
	PreferredService string
	FallbackEnabled  bool
	Summarize        bool
	Options          stt.Options
	ClientIP         string
	UserAgent        string
}

// TranscribeOutput is the normalized outcome both response shapes are built
// from.
type TranscribeOutput struct {
	RequestID            string
	ResponseID           string
	Text                 string
	Summary              string
	ProviderSummary      string
	ServiceUsed          string
	Confidence           float64
	Language             string
	AudioDuration        float64
	AudioDurationMinutes float64
	Duration             float64
	ProcessingTime       float64
	TokensUsed           int
	Raw                  map[string]any
	Attempts             []stt.Attempt
}

// TranscriptionService is the business half of the request facade: it
// validates the upload, drives the fallback dispatcher, optionally
// summarizes, and persists the request/response records. Persistence
// failures degrade to warnings; only dispatch failures fail the call.
type TranscriptionService struct {
	dispatcher *stt.Dispatcher
	summarizer summary.Summarizer
	records    transcription.Repository
	logger     *zap.Logger

	now func() time.Time
}

func NewTranscriptionService(dispatcher *stt.Dispatcher, summarizer summary.Summarizer, records transcription.Repository, logger *zap.Logger) *TranscriptionService {
	return &TranscriptionService{
		dispatcher: dispatcher,
		summarizer: summarizer,
		records:    records,
		logger:     logger.Named("TranscriptionService"),
		now:        time.Now,
	}
}

func (s *TranscriptionService) AvailableServices() []string {
	return s.dispatcher.AvailableServices()
}

// ServiceInfo describes one provider for the inventory endpoint.
type ServiceInfo struct {
	Name             string
	SupportedFormats []string
	Configured       bool
}

func (s *TranscriptionService) ServiceInfo(name string) (ServiceInfo, bool) {
	p, ok := s.dispatcher.Provider(name)
	if !ok {
		return ServiceInfo{}, false
	}
	return ServiceInfo{
		Name:             p.Name(),
		SupportedFormats: p.SupportedFormats(),
		Configured:       p.Configured(),
	}, true
}

func (s *TranscriptionService) Transcribe(ctx context.Context, in TranscribeInput) (*TranscribeOutput, error) {
	started := s.now()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Filename), "."))
	if !s.formatSupported(ext) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ierr.ErrUnsupportedFormat, ext, strings.Join(s.dispatcher.SupportedFormats(), ", "))
	}

	res, dispatchErr := s.dispatcher.Dispatch(ctx, stt.DispatchRequest{
		Audio:            in.Audio,
		Filename:         in.Filename,
		Options:          in.Options,
		PreferredService: in.PreferredService,
		FallbackEnabled:  in.FallbackEnabled,
	})

	for _, attempt := range res.Attempts {
		outcome := "success"
		if attempt.Err != nil {
			outcome = string(attempt.Err.Kind)
		}
		metrics.ProviderAttempts.WithLabelValues(attempt.Provider, outcome).Inc()
		metrics.ProviderLatency.WithLabelValues(attempt.Provider).Observe(attempt.Duration.Seconds())
	}

	requestID := transcription.NewRequestID(started)

	if dispatchErr != nil {
		s.recordFailedRequest(ctx, requestID, in, started)
		return nil, dispatchErr
	}

	outcome := res.Outcome

	out := &TranscribeOutput{
		RequestID:       requestID,
		Text:            outcome.Text,
		ProviderSummary: outcome.Summary,
		ServiceUsed:     outcome.ProviderName,
		Confidence:      outcome.Confidence,
		Language:        outcome.Language,
		AudioDuration:   outcome.AudioDuration,
		Duration:        outcome.ProcessingTime.Seconds(),
		ProcessingTime:  res.TotalTime.Seconds(),
		Raw:             outcome.Raw,
		Attempts:        res.Attempts,
	}
	if outcome.AudioDuration > 0 {
		out.AudioDurationMinutes = outcome.AudioDuration / 60.0
	}

	if in.Summarize && strings.TrimSpace(outcome.Text) != "" && s.summarizer != nil && s.summarizer.Configured() {
		summaryText, tokens, err := s.summarizer.Summarize(ctx, outcome.Text)
		if err != nil {
			s.logger.Warn("Summary generation failed", zap.String("request_id", requestID), zap.Error(err))
		} else {
			out.Summary = summaryText
			out.TokensUsed = tokens
		}
	}

	out.ResponseID = s.persistRecords(ctx, in, out, started)

	s.logger.Info("Transcription completed",
		zap.String("request_id", requestID),
		zap.String("service", out.ServiceUsed),
		zap.Int("attempts", len(res.Attempts)),
		zap.Float64("processing_time", out.ProcessingTime),
	)
	return out, nil
}

func (s *TranscriptionService) formatSupported(ext string) bool {
	for _, f := range s.dispatcher.SupportedFormats() {
		if f == ext {
			return true
		}
	}
	return false
}

// persistRecords writes the request and response rows. Failures are logged
// and swallowed: the transcription result is already in hand and losing a
// history row must not fail the call.
func (s *TranscriptionService) persistRecords(ctx context.Context, in TranscribeInput, out *TranscribeOutput, started time.Time) string {
	req := &transcription.Request{
		RequestID:        out.RequestID,
		UserUUID:         in.UserUUID,
		Filename:         in.Filename,
		FileSize:         int64(len(in.Audio)),
		ServiceRequested: out.ServiceUsed,
		Language:         out.Language,
		AudioDuration:    out.AudioDuration,
		Status:           transcription.StatusCompleted,
		ProcessingTime:   out.ProcessingTime,
		ClientIP:         in.ClientIP,
		UserAgent:        in.UserAgent,
		CreatedAt:        started.UTC(),
	}
	if err := s.records.CreateRequest(ctx, req); err != nil {
		s.logger.Warn("Failed to persist transcription request", zap.String("request_id", out.RequestID), zap.Error(err))
		return ""
	}

	responseID := transcription.NewResponseID(s.now())
	var rawJSON []byte
	if out.Raw != nil {
		rawJSON, _ = json.Marshal(out.Raw)
	}
	var summaryText *string
	if out.Summary != "" {
		summaryText = &out.Summary
	}

	resp := &transcription.Response{
		ResponseID:           responseID,
		RequestID:            out.RequestID,
		TranscriptionText:    out.Text,
		SummaryText:          summaryText,
		ConfidenceScore:      out.Confidence,
		ServiceProvider:      out.ServiceUsed,
		Duration:             out.Duration,
		ProcessingTime:       out.ProcessingTime,
		LanguageDetected:     out.Language,
		AudioDurationMinutes: out.AudioDurationMinutes,
		TokensUsed:           out.TokensUsed,
		ResponseData:         rawJSON,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.records.CreateResponse(ctx, resp); err != nil {
		s.logger.Warn("Failed to persist transcription response", zap.String("request_id", out.RequestID), zap.Error(err))
		return ""
	}
	return responseID
}

func (s *TranscriptionService) recordFailedRequest(ctx context.Context, requestID string, in TranscribeInput, started time.Time) {
	req := &transcription.Request{
		RequestID:        requestID,
		UserUUID:         in.UserUUID,
		Filename:         in.Filename,
		FileSize:         int64(len(in.Audio)),
		ServiceRequested: in.PreferredService,
		Language:         in.Options.LanguageOrDefault(),
		Status:           transcription.StatusFailed,
		ProcessingTime:   s.now().Sub(started).Seconds(),
		ClientIP:         in.ClientIP,
		UserAgent:        in.UserAgent,
		CreatedAt:        started.UTC(),
	}
	if err := s.records.CreateRequest(ctx, req); err != nil {
		s.logger.Warn("Failed to persist failed transcription request", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *TranscriptionService) ListRequests(ctx context.Context, userUUID string, limit int) ([]*transcription.Request, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.records.ListRequestsByOwner(ctx, userUUID, limit)
}

func (s *TranscriptionService) GetRequestDetail(ctx context.Context, requestID string) (*transcription.Request, *transcription.Response, error) {
	return s.records.FindRequestWithResponse(ctx, requestID)
}
