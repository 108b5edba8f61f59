package models

import "time"

// Priority is the caller-declared urgency of a request. It governs queue
// ordering only; backend selection is driven by Complexity.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

// Complexity is the caller-declared task difficulty. It governs which
// backend the router prefers, independently of Priority.
type Complexity string

const (
	ComplexityEinstein Complexity = "einstein"
	ComplexityUltra    Complexity = "ultra"
	ComplexityHigh     Complexity = "high"
	ComplexityLow      Complexity = "low"
	ComplexityNone     Complexity = ""
)

type Message struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages" binding:"required"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	TopP        float32   `json:"top_p,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Backend string   `json:"backend,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// BackendHealth is one entry of the per-backend section of /health.
type BackendHealth struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Default bool   `json:"default"`
}

type HealthReport struct {
	Status            string          `json:"status"`
	Backends          []BackendHealth `json:"backends"`
	QueueDepth        int             `json:"queue_depth"`
	GPUStarvationRisk string          `json:"gpu_starvation_risk"`
	MeanLatencyMs     float64         `json:"mean_latency_ms"`
	InFlight          int             `json:"in_flight"`
	Timestamp         time.Time       `json:"timestamp"`
}

// StatsSnapshot is a point-in-time copy of the dispatcher counters.
// Cumulative fields only ever grow for the lifetime of the process.
type StatsSnapshot struct {
	TotalRequests         int64   `json:"total_requests"`
	HighPriorityRequests  int64   `json:"high_priority_requests"`
	LowPriorityRequests   int64   `json:"low_priority_requests"`
	CompletedRequests     int64   `json:"completed_requests"`
	FailedRequests        int64   `json:"failed_requests"`
	TotalPromptTokens     int64   `json:"total_prompt_tokens"`
	TotalCompletionTokens int64   `json:"total_completion_tokens"`
	CumulativeLatencyMs   float64 `json:"cumulative_latency_ms"`
	MeanLatencyMs         float64 `json:"mean_latency_ms"`
	QueueDepth            int     `json:"queue_depth"`
	PeakQueueDepth        int     `json:"peak_queue_depth"`
	InFlight              int     `json:"in_flight"`
}
