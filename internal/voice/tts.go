package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
)

// testKeySentinel is the placeholder credential used in development
// environments. It means "speech synthesis is configured off", not a
// misconfiguration.
const testKeySentinel = "test_key"

// SpeechEnabled reports whether an ElevenLabs credential is usable.
func SpeechEnabled(apiKey string) bool {
	return apiKey != "" && apiKey != testKeySentinel
}

// Synthesizer produces audio from text.
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, text string) ([]byte, error)
}

// SynthResult holds synthesized audio with timing.
type SynthResult struct {
	Audio     []byte  `json:"-"`
	LatencyMs float64 `json:"latency_ms"`
}

// StatusError is returned when a synthesis backend answers with a
// non-success HTTP status. It is distinguished from transport failures,
// which the service degrades to "no audio" instead of surfacing.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("text-to-speech failed: %s", e.Status)
}

// SynthesizerRouter dispatches to the correct synthesis backend by engine
// name and records stage latency.
type SynthesizerRouter struct {
	*Router[Synthesizer]
}

// NewSynthesizerRouter creates a router with registered backends and a fallback default.
func NewSynthesizerRouter(backends map[string]Synthesizer, fallback string) *SynthesizerRouter {
	return &SynthesizerRouter{Router: NewRouter(backends, fallback)}
}

// Synthesize routes to the requested backend and synthesizes audio.
func (r *SynthesizerRouter) Synthesize(ctx context.Context, text, engine string) (*SynthResult, error) {
	start := time.Now()

	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	audio, err := backend.SynthesizeAudio(ctx, text)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "synth").Inc()
		return nil, err
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())

	return &SynthResult{
		Audio:     audio,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}

// ElevenLabsSynthesizer calls the ElevenLabs cloud API with fixed model
// and voice-tuning parameters.
type ElevenLabsSynthesizer struct {
	baseURL string
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

// elevenLabsBaseURL is the production API endpoint; overridable for tests.
const elevenLabsBaseURL = "https://api.elevenlabs.io"

// NewElevenLabsSynthesizer creates an ElevenLabs client.
func NewElevenLabsSynthesizer(apiKey, voiceID, modelID string, client *http.Client) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		baseURL: elevenLabsBaseURL,
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		client:  client,
	}
}

// NewElevenLabsSynthesizerAt is NewElevenLabsSynthesizer with an explicit
// base URL, for pointing at a mock server.
func NewElevenLabsSynthesizerAt(baseURL, apiKey, voiceID, modelID string, client *http.Client) *ElevenLabsSynthesizer {
	s := NewElevenLabsSynthesizer(apiKey, voiceID, modelID, client)
	s.baseURL = baseURL
	return s
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// SynthesizeAudio issues one synthesis request and returns the audio bytes.
// Non-2xx responses surface as *StatusError.
func (e *ElevenLabsSynthesizer) SynthesizeAudio(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: elevenLabsSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Status: resp.Status}
	}

	return io.ReadAll(resp.Body)
}
