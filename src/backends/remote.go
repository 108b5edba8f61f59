package backends

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/swarmworks/hivegate/src/models"
)

// RemoteClient talks to the remote proprietary GPU API. Bearer token auth,
// OpenAI-compatible wire shape.
type RemoteClient struct {
	name   string
	model  string
	client *openai.Client
}

func NewRemoteClient(name, endpoint, apiKey, model string) (*RemoteClient, error) {
	if apiKey == "" {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("API key is empty for backend %s", name)}
	}

	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}

	return &RemoteClient{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

func (c *RemoteClient) Invoke(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
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

func (c *RemoteClient) Probe(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

func (c *RemoteClient) Embed(ctx context.Context, text, model string) (*models.EmbeddingResponse, error) {
	return embed(ctx, c.name, c.client, text, model)
}

// completionRequest maps the gateway envelope onto the provider request.
func completionRequest(model string, req *models.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: float32(temperatureOrDefault(req.Temperature)),
		TopP:        req.TopP,
	}
}

// completionResponse passes the provider result through structurally,
// including reasoning output when the model produced any.
func completionResponse(result *openai.ChatCompletionResponse) *models.ChatResponse {
	resp := &models.ChatResponse{
		ID:    result.ID,
		Model: result.Model,
		Usage: models.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
	for _, choice := range result.Choices {
		resp.Choices = append(resp.Choices, models.Choice{
			Index: choice.Index,
			Message: models.Message{
				Role:             choice.Message.Role,
				Content:          choice.Message.Content,
				ReasoningContent: choice.Message.ReasoningContent,
			},
			FinishReason: string(choice.FinishReason),
		})
	}
	return resp
}

func embed(ctx context.Context, name string, client *openai.Client, text, model string) (*models.EmbeddingResponse, error) {
	result, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify(name, err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("backend %s returned no embedding", name)
	}
	return &models.EmbeddingResponse{
		Embedding: result.Data[0].Embedding,
		Model:     string(result.Model),
	}, nil
}
