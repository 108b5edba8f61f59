package backends

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/swarmworks/hivegate/src/models"
)

// CloudClient talks to the cloud reasoning-capable API. Alongside the
// default chat model it carries a distinguished deep-reasoning variant;
// the gateway selects it by setting the envelope's model field before
// enqueueing einstein-class work.
type CloudClient struct {
	name           string
	model          string
	reasoningModel string
	client         *openai.Client
}

func NewCloudClient(name, endpoint, apiKey, model, reasoningModel string) (*CloudClient, error) {
	if apiKey == "" {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("API key is empty for backend %s", name)}
	}

	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}

	return &CloudClient{
		name:           name,
		model:          model,
		reasoningModel: reasoningModel,
		client:         openai.NewClientWithConfig(cfg),
	}, nil
}

func (c *CloudClient) Invoke(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	result, err := c.client.CreateChatCompletion(ctx, completionRequest(model, req))
	if err != nil {
		return nil, classify(c.name, err)
	}

	return completionResponse(&result), nil
}

func (c *CloudClient) Probe(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

func (c *CloudClient) Embed(ctx context.Context, text, model string) (*models.EmbeddingResponse, error) {
	return embed(ctx, c.name, c.client, text, model)
}
