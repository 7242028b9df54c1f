package client

import (
	"context"

	"github.com/xaenox/appdock/internal/assistant"
	"go.uber.org/zap"
)

// Assistant adapts the completion endpoint to the prediction and
// extraction surfaces the list store expects. The prompts and response
// handling are the same ones the server-side assistant uses.
type Assistant struct {
	client *Client
	logger *zap.Logger
}

func NewAssistant(c *Client, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{client: c, logger: logger}
}

func (a *Assistant) PredictCategory(ctx context.Context, text, listTitle string) string {
	raw, err := a.client.Complete(ctx, assistant.CategoryPrompt(text, listTitle))
	if err != nil {
		a.logger.Error("Failed to predict category",
			zap.Error(err),
			zap.String("text", text))
		return assistant.DefaultCategory
	}
	return assistant.ValidateCategory(raw)
}

func (a *Assistant) ExtractItems(ctx context.Context, text, listTitle string, current []string) ([]string, error) {
	raw, err := a.client.Complete(ctx, assistant.ExtractionPrompt(text, listTitle, current))
	if err != nil {
		return nil, err
	}
	return assistant.ParseExtraction(raw)
}
