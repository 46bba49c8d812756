package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
)

// Transcriber produces text from a recorded utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error)
}

// TranscriptResult holds the transcription output with timing.
type TranscriptResult struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// TranscriberRouter dispatches to the correct transcription backend by
// engine name and records stage latency.
type TranscriberRouter struct {
	*Router[Transcriber]
}

// NewTranscriberRouter creates a router with registered backends and a fallback default.
func NewTranscriberRouter(backends map[string]Transcriber, fallback string) *TranscriberRouter {
	return &TranscriberRouter{Router: NewRouter(backends, fallback)}
}

// Transcribe routes to the requested backend and transcribes the utterance.
func (r *TranscriberRouter) Transcribe(ctx context.Context, audio []byte, engine string) (*TranscriptResult, error) {
	start := time.Now()

	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	result, err := backend.Transcribe(ctx, audio)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "transcribe").Inc()
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("asr").Observe(time.Since(start).Seconds())
	return result, nil
}

// WhisperClient sends a recorded utterance as multipart WAV to any
// whisper-compatible HTTP endpoint. The audio buffer is forwarded as-is;
// the client imposes no format on it beyond the upload filename.
type WhisperClient struct {
	url      string
	endpoint string
	client   *http.Client
}

// NewWhisperClient creates a client for a whisper.cpp server (/inference endpoint).
func NewWhisperClient(url string, poolSize int) *WhisperClient {
	return &WhisperClient{
		url:      url,
		endpoint: "/inference",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Transcribe uploads the utterance and returns the recognized text.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(audio)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper status %d: %s", resp.StatusCode, respBody)
	}

	var result whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	return &TranscriptResult{
		Text:      result.Text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

func buildMultipartAudio(audio []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}

	if _, err = part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
