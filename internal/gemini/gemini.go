package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModel = "gemini-1.5-flash"
	// DefaultMaxTokens fits a tag-format article; JSON output carries more structure.
	DefaultMaxTokens int32 = 700
	JSONMaxTokens    int32 = 2048
)

// ErrTruncated means the model stopped at the output token limit.
var ErrTruncated = errors.New("gemini: response truncated at max output tokens")

type Client struct {
	client      *genai.Client
	model       string
	jsonMode    bool
	temperature float32
	topP        float32
	maxTokens   int32
}

type Option func(*Client)

func WithModel(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.model = name
		}
	}
}

// WithJSON asks the model for an application/json response.
func WithJSON(on bool) Option {
	return func(c *Client) { c.jsonMode = on }
}

func WithMaxTokens(n int32) Option {
	return func(c *Client) { c.maxTokens = n }
}

func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := newClient(opts...)
	c.client = client
	return c, nil
}

func newClient(opts ...Option) *Client {
	c := &Client{
		model:       DefaultModel,
		temperature: 0.4,
		topP:        0.95,
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxTokens == 0 {
		c.maxTokens = DefaultMaxTokens
		if c.jsonMode {
			c.maxTokens = JSONMaxTokens
		}
	}
	return c
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Generate sends prompt and returns the concatenated text parts of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	model.SetTopP(c.topP)
	model.SetMaxOutputTokens(c.maxTokens)
	if c.jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no response from Gemini")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		return "", ErrTruncated
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("empty Gemini candidate (finish reason %v)", cand.FinishReason)
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
