package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentResponder generates replies through an OpenAI-compatible provider
// using the openai-agents SDK. Suited for hosted models where the intake
// assistant runs against a cloud completion endpoint.
type AgentResponder struct {
	provider     agents.ModelProvider
	defaultModel string
	maxTokens    int
}

// NewAgentResponder creates an SDK-backed responder for the given provider.
func NewAgentResponder(provider agents.ModelProvider, defaultModel string, maxTokens int) *AgentResponder {
	return &AgentResponder{
		provider:     provider,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
	}
}

// Respond runs a single-turn agent and aggregates the streamed output.
func (a *AgentResponder) Respond(ctx context.Context, userText, systemPrompt, model string) (*ReplyResult, error) {
	useModel := model
	if useModel == "" {
		useModel = a.defaultModel
	}

	agent := agents.New("intake-assistant").
		WithInstructions(systemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(a.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userText)
	if err != nil {
		return nil, fmt.Errorf("agent run start: %w", err)
	}

	var textBuf strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok {
			continue
		}
		if raw.Data.Type != "response.output_text.delta" {
			continue
		}
		textBuf.WriteString(raw.Data.Delta)
	}

	if streamErr := <-errCh; streamErr != nil {
		return nil, fmt.Errorf("agent run: %w", streamErr)
	}

	return &ReplyResult{
		Text:      strings.TrimSpace(textBuf.String()),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}
