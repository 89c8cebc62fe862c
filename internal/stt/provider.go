package stt

import (
	"context"
	"time"
)

// Canonical service names as they appear in configuration, request
// parameters and persisted records.
const (
	ServiceDaglo      = "daglo"
	ServiceAssemblyAI = "assemblyai"
	ServiceTiro       = "tiro"
	ServiceWhisper    = "fast-whisper"
)

// Provider is one external speech-to-text vendor. Implementations translate
// Options into the vendor's native request and map the vendor's native
// response into the shared Result shape; nothing downstream of an adapter
// sees vendor-specific fields outside Result.Raw.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error)
	Name() string
	Configured() bool
	SupportedFormats() []string
}

// Options are the caller-tunable knobs shared across vendors. Adapters
// ignore the ones their vendor has no equivalent for.
type Options struct {
	Language           string
	ModelSize          string
	Task               string
	SpeakerDiarization bool
	SpeakerCountHint   int
}

func (o Options) LanguageOrDefault() string {
	if o.Language == "" {
		return "ko"
	}
	return o.Language
}

// Result is the normalized transcription outcome.
type Result struct {
	Text          string
	Summary       string
	Confidence    float64
	AudioDuration float64
	Language      string
	TranscriptID  string
	ProviderName  string
	// ProcessingTime is measured by the adapter around the outbound calls,
	// independent of any vendor-reported timing.
	ProcessingTime time.Duration
	Raw            map[string]any
}
