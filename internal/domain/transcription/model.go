package transcription

import "time"

type RequestStatus string

const (
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// Request records one inbound transcription call.
type Request struct {
	RequestID        string        `db:"request_id"`
	UserUUID         string        `db:"user_uuid"`
	Filename         string        `db:"filename"`
	FileSize         int64         `db:"file_size"`
	ServiceRequested string        `db:"service_requested"`
	Language         string        `db:"language"`
	AudioDuration    float64       `db:"audio_duration"`
	Status           RequestStatus `db:"status"`
	ProcessingTime   float64       `db:"processing_time"`
	ClientIP         string        `db:"client_ip"`
	UserAgent        string        `db:"user_agent"`
	CreatedAt        time.Time     `db:"created_at"`
}

// Response records the provider outcome for a request. ResponseData keeps
// the vendor-native payload as opaque JSON for later inspection.
type Response struct {
	ResponseID           string    `db:"response_id"`
	RequestID            string    `db:"request_id"`
	TranscriptionText    string    `db:"transcription_text"`
	SummaryText          *string   `db:"summary_text"`
	ConfidenceScore      float64   `db:"confidence_score"`
	ServiceProvider      string    `db:"service_provider"`
	Duration             float64   `db:"duration"`
	ProcessingTime       float64   `db:"processing_time"`
	LanguageDetected     string    `db:"language_detected"`
	AudioDurationMinutes float64   `db:"audio_duration_minutes"`
	TokensUsed           int       `db:"tokens_used"`
	ResponseData         []byte    `db:"response_data"`
	CreatedAt            time.Time `db:"created_at"`
}
