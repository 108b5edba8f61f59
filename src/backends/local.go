package backends

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/swarmworks/hivegate/src/models"
)

const defaultMaxTokens = 1024

// LocalClient talks to an OpenAI-compatible inference server on the local
// network (llama.cpp / ollama class). No authentication: the accelerator
// box is only reachable from inside.
type LocalClient struct {
	name     string
	endpoint string
	model    string
	llm      llms.Model
}

func NewLocalClient(name, endpoint, model string) (*LocalClient, error) {
	// The client library insists on a token even though the local server
	// ignores it.
	llm, err := openai.New(
		openai.WithBaseURL(endpoint),
		openai.WithToken("local"),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for backend %s: %w", name, err)
	}

	return &LocalClient{
		name:     name,
		endpoint: endpoint,
		model:    model,
		llm:      llm,
	}, nil
}

func (c *LocalClient) Invoke(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{
		llms.WithTemperature(temperatureOrDefault(req.Temperature)),
		llms.WithMaxTokens(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.TopP > 0 {
		opts = append(opts, llms.WithTopP(float64(req.TopP)))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	result, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, classify(c.name, err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("backend %s returned no choices", c.name)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	resp := &models.ChatResponse{
		ID:    "chatcmpl-" + uuid.NewString(),
		Model: model,
	}
	for i, choice := range result.Choices {
		finish := choice.StopReason
		if finish == "" {
			finish = "stop"
		}
		resp.Choices = append(resp.Choices, models.Choice{
			Index:        i,
			Message:      models.Message{Role: "assistant", Content: choice.Content},
			FinishReason: finish,
		})
	}
	resp.Usage = usageFromGenerationInfo(result.Choices[0].GenerationInfo, req, result.Choices[0].Content)

	return resp, nil
}

// Probe checks liveness with a plain GET against the model listing route.
func (c *LocalClient) Probe(ctx context.Context) bool {
	url := strings.TrimRight(c.endpoint, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (c *LocalClient) Embed(ctx context.Context, text, model string) (*models.EmbeddingResponse, error) {
	llm, ok := c.llm.(interface {
		CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	})
	if !ok {
		return nil, fmt.Errorf("backend %s does not support embeddings", c.name)
	}

	vectors, err := llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, classify(c.name, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("backend %s returned no embedding", c.name)
	}

	if model == "" {
		model = c.model
	}
	return &models.EmbeddingResponse{Embedding: vectors[0], Model: model}, nil
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	case "tool":
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

func temperatureOrDefault(t float32) float64 {
	if t == 0 {
		return 0.7
	}
	return float64(t)
}

func maxTokensOrDefault(n int) int {
	if n == 0 {
		return defaultMaxTokens
	}
	return n
}

// usageFromGenerationInfo recovers token counts the way the client library
// reports them; servers that omit usage degrade to whitespace estimates.
func usageFromGenerationInfo(info map[string]any, req *models.ChatRequest, output string) models.Usage {
	usage := models.Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
	if usage.PromptTokens == 0 {
		for _, m := range req.Messages {
			usage.PromptTokens += len(strings.Fields(m.Content))
		}
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = len(strings.Fields(output))
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
