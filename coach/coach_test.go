/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package coach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestGenerateFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		require.Equal(t, "hello [redacted] thanks for your time", req.Messages[1].Content)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "Good opener. Ask more discovery questions next time.",
				}},
			},
		})
	}))
	defer srv.Close()

	cfg := NewDefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	c, err := New(cfg)
	require.NoError(t, err)

	feedback, err := c.GenerateFeedback(context.Background(), "hello [redacted] thanks for your time")
	require.NoError(t, err)
	require.Equal(t, "Good opener. Ask more discovery questions next time.", feedback)
}

func TestGenerateFeedbackEmptyTranscript(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.APIKey = "test-key"
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.GenerateFeedback(context.Background(), "   ")
	require.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(NewDefaultConfig())
	require.Error(t, err)
}
