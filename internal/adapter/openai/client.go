// Package openai implements the chat completion transport against an
// OpenAI-compatible API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/cyclone-track-service/internal/fetch"
	"github.com/couchcryptid/cyclone-track-service/internal/forecast"
)

// Client calls the chat completions endpoint. It implements
// forecast.ChatCompleter.
type Client struct {
	fetcher *fetch.Client
	baseURL string
}

// New creates a chat client. baseURL is the API root, e.g.
// https://api.openai.com/v1.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	fetcher := fetch.New("openai", timeout)
	fetcher.SetHeader("Authorization", "Bearer "+apiKey)
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type completionRequest struct {
	Model    string                 `json:"model"`
	Messages []forecast.ChatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation and returns the assistant reply text.
func (c *Client) Complete(ctx context.Context, model string, messages []forecast.ChatMessage) (string, error) {
	body, err := c.fetcher.PostJSON(ctx, c.baseURL+"/chat/completions", completionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
