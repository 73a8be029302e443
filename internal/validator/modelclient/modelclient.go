// Package modelclient calls the configurable model endpoint the Weighted
// Model Router selects models from. It speaks the OpenAI chat-completion
// wire shape, which every retrieved provider in this pool — local
// OpenRouter-fronted models included — accepts.
package modelclient

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clduab11/pricehawk/internal/transport"
)

// requestsPerMinute caps calls to the model endpoint well under typical
// free-tier OpenRouter limits, independent of the circuit breaker, which
// reacts to failures rather than pacing volume.
const requestsPerMinute = 60

// Client wraps a go-openai client pointed at a configurable base URL so it
// can reach any OpenAI-compatible endpoint, not just api.openai.com.
type Client struct {
	cli *openai.Client
}

// New builds a Client against baseURL using apiKey for auth.
func New(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = transport.NewRateLimitedClient(requestsPerMinute, 60*time.Second)
	return &Client{cli: openai.NewClientWithConfig(cfg)}
}

// CompleteJSON asks modelID to produce a JSON object matching prompt,
// bounded by deadline, and returns the raw text content.
func (c *Client) CompleteJSON(ctx context.Context, modelID, systemPrompt, userPrompt string, deadline time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("model call %s: %w", modelID, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", modelID)
	}
	return resp.Choices[0].Message.Content, nil
}
