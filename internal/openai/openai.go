// Package openai is the OpenAI chat-completions generator.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client   *goopenai.Client
	model    string
	jsonMode bool
}

// NewClient builds a generator. baseURL is optional and mainly used by tests.
func NewClient(apiKey, model, baseURL string, jsonMode bool) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = goopenai.GPT4oMini
	}
	return &Client{client: goopenai.NewClientWithConfig(cfg), model: model, jsonMode: jsonMode}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         0.4,
		MaxCompletionTokens: 2000,
	}
	if c.jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
