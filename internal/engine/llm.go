package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
)

// ErrNoLLMClient is returned when generation is requested without a configured client.
var ErrNoLLMClient = errors.New("llm client not configured")

const defaultMaxTokens = 2000

// ChatGenerator sends single-turn prompts to the chat-completion endpoint.
type ChatGenerator struct {
	Client      *llm.Client
	Temperature float64
	MaxTokens   int
}

// NewChatGenerator builds a generator from the engine configuration.
func NewChatGenerator(c Config) *ChatGenerator {
	return &ChatGenerator{
		Client:      c.LLMClient,
		Temperature: c.LLMTemperature,
		MaxTokens:   c.LLMMaxTokens,
	}
}

// Generate returns the model's raw text for prompt.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.Client == nil {
		return "", ErrNoLLMClient
	}
	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	metrics.LLMCalls.Add(1)
	resp, err := g.Client.Complete(ctx, "", prompt,
		llm.WithChatTemperature(g.Temperature),
		llm.WithChatMaxTokens(maxTokens),
	)
	if err != nil {
		metrics.LLMErrors.Add(1)
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// StripFences removes markdown code fences from LLM output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (json, text, ...) on the opening fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[]{}") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
