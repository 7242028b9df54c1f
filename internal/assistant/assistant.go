package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client wraps the completion API used for chat replies, category
// prediction and bulk item extraction. Prompt content differs per call
// site; the response is always plain text.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewClient(apiKey string, model string, maxTokens int, temperature float64, logger *zap.Logger) *Client {
	return &Client{
		api:         openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends prompt and returns the raw completion text, trimmed.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion request: empty response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
