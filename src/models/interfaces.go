package models

import (
	"context"
)

// BackendClient is the two-method contract every inference provider
// implements. New backend kinds plug in here without touching the router
// or the dispatcher.
type BackendClient interface {
	Invoke(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Probe(ctx context.Context) bool
}

// Embedder is implemented by backends that can also serve embedding
// requests. Asserted at the call site; not part of BackendClient.
type Embedder interface {
	Embed(ctx context.Context, text, model string) (*EmbeddingResponse, error)
}

// CompletionCache defines the interface for completion cache operations
type CompletionCache interface {
	Get(ctx context.Context, key string) (*ChatResponse, error)
	Set(ctx context.Context, key string, response *ChatResponse) error
	Delete(ctx context.Context, key string) error
	Close() error
}
