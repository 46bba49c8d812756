package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caretide/intake-gateway/internal/metrics"
)

// TurnContext is the intake context threaded into the completion request.
// Fields are the known attributes a dashboard attaches to a voice turn;
// anything the assistant should know beyond them goes in Notes.
type TurnContext struct {
	PatientName   string `json:"patient_name,omitempty"`
	ReferralStage string `json:"referral_stage,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// SystemPrompt folds the turn context into the assistant's base prompt.
func (tc TurnContext) SystemPrompt(base string) string {
	var b strings.Builder
	b.WriteString(base)
	if tc.PatientName != "" {
		fmt.Fprintf(&b, "\nThe caller is assisting patient %s.", tc.PatientName)
	}
	if tc.ReferralStage != "" {
		fmt.Fprintf(&b, "\nThe referral is currently in the %q stage.", tc.ReferralStage)
	}
	if tc.Notes != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s", tc.Notes)
	}
	return b.String()
}

// Responder produces an assistant reply for a transcribed utterance.
type Responder interface {
	Respond(ctx context.Context, userText, systemPrompt, model string) (*ReplyResult, error)
}

// ReplyResult holds the completed reply with timing.
type ReplyResult struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// ResponderRouter dispatches to the correct completion backend by engine
// name and records stage latency.
type ResponderRouter struct {
	*Router[Responder]
}

// NewResponderRouter creates a router with registered backends and a fallback default.
func NewResponderRouter(backends map[string]Responder, fallback string) *ResponderRouter {
	return &ResponderRouter{Router: NewRouter(backends, fallback)}
}

// Respond routes to the requested backend and generates a reply.
func (r *ResponderRouter) Respond(ctx context.Context, userText, systemPrompt, model, engine string) (*ReplyResult, error) {
	start := time.Now()

	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	result, err := backend.Respond(ctx, userText, systemPrompt, model)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "respond").Inc()
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return result, nil
}

// OllamaResponder generates replies from a local Ollama server.
type OllamaResponder struct {
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllamaResponder creates an Ollama HTTP client.
func NewOllamaResponder(url, model string, maxTokens, poolSize int) *OllamaResponder {
	return &OllamaResponder{
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

// Respond sends the transcribed utterance to Ollama and returns the reply.
func (c *OllamaResponder) Respond(ctx context.Context, userText, systemPrompt, model string) (*ReplyResult, error) {
	start := time.Now()

	useModel := c.model
	if model != "" {
		useModel = model
	}

	reqBody := ollamaRequest{
		Model:  useModel,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		Options: ollamaOptions{NumPredict: c.maxTokens},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	var out ollamaResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	return &ReplyResult{
		Text:      strings.TrimSpace(out.Message.Content),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}
