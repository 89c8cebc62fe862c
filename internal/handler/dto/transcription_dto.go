package dto

import "time"

// AnonymousTranscriptionResponse mirrors the public endpoint shape: caller
// identity fields are present but null, and the vendor payload rides along
// in original_response.
type AnonymousTranscriptionResponse struct {
	UserID           *string        `json:"user_id"`
	Email            *string        `json:"email"`
	RequestID        string         `json:"request_id"`
	Status           string         `json:"status"`
	STTMessage       string         `json:"stt_message"`
	STTSummary       string         `json:"stt_summary"`
	ServiceName      string         `json:"service_name"`
	ProcessingTime   float64        `json:"processing_time"`
	OriginalResponse map[string]any `json:"original_response,omitempty"`
	TiroSummary      string         `json:"tiro_summary,omitempty"`
}

// ProtectedTranscriptionResponse is the credentialed shape: billing-relevant
// fields only, no vendor payload.
type ProtectedTranscriptionResponse struct {
	Status               string  `json:"status"`
	Transcription        string  `json:"transcription"`
	Summary              string  `json:"summary,omitempty"`
	ServiceUsed          string  `json:"service_used"`
	Duration             float64 `json:"duration"`
	ProcessingTime       float64 `json:"processing_time"`
	AudioDurationMinutes float64 `json:"audio_duration_minutes"`
	TokensUsed           int     `json:"tokens_used"`
	UserID               string  `json:"user_id"`
	Filename             string  `json:"filename"`
	RequestID            string  `json:"request_id"`
	ResponseID           string  `json:"response_id"`
}

type TranscriptionRequestItem struct {
	RequestID        string    `json:"request_id"`
	Filename         string    `json:"filename"`
	FileSize         int64     `json:"file_size"`
	ServiceRequested string    `json:"service_requested"`
	Language         string    `json:"language"`
	Status           string    `json:"status"`
	ProcessingTime   float64   `json:"processing_time"`
	CreatedAt        time.Time `json:"created_at"`
}

type TranscriptionDetailResponse struct {
	Request  TranscriptionRequestItem   `json:"request"`
	Response *TranscriptionResponseItem `json:"response,omitempty"`
}

type TranscriptionResponseItem struct {
	ResponseID           string    `json:"response_id"`
	TranscriptionText    string    `json:"transcription_text"`
	SummaryText          *string   `json:"summary_text,omitempty"`
	ConfidenceScore      float64   `json:"confidence_score"`
	ServiceProvider      string    `json:"service_provider"`
	Duration             float64   `json:"duration"`
	ProcessingTime       float64   `json:"processing_time"`
	LanguageDetected     string    `json:"language_detected"`
	AudioDurationMinutes float64   `json:"audio_duration_minutes"`
	TokensUsed           int       `json:"tokens_used"`
	CreatedAt            time.Time `json:"created_at"`
}

type ServiceInfoResponse struct {
	Name             string   `json:"name"`
	SupportedFormats []string `json:"supported_formats"`
	IsConfigured     bool     `json:"is_configured"`
	IsDefault        bool     `json:"is_default"`
}
