/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package coach generates sales-coaching feedback for call transcripts with
// an LLM. Only the PII-redacted transcript text ever leaves the service.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are an experienced sales coach reviewing a transcript of a sales call.
Personally identifiable information in the transcript has been replaced with [redacted] markers; ignore them.
Give the rep concise, actionable feedback: what went well, what to improve, and one concrete next step.`

// Coach produces coaching feedback from redacted transcripts.
type Coach struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// New creates a Coach from the configuration.
func New(cfg *Config) (*Coach, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("coach API key is not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Coach{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// GenerateFeedback asks the model for feedback on a redacted transcript.
func (c *Coach) GenerateFeedback(ctx context.Context, redactedTranscript string) (string, error) {
	if strings.TrimSpace(redactedTranscript) == "" {
		return "", fmt.Errorf("transcript is empty")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: redactedTranscript},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
