package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmworks/hivegate/src/cache"
	"github.com/swarmworks/hivegate/src/models"
	"github.com/swarmworks/hivegate/src/queue"
	"github.com/swarmworks/hivegate/src/registry"
	"github.com/swarmworks/hivegate/src/router"
)

const embedTimeout = 30 * time.Second

type GatewayHandler struct {
	dispatcher *queue.Dispatcher
	router     *router.Router
	registry   *registry.Registry
	cache      models.CompletionCache
}

func NewGatewayHandler(d *queue.Dispatcher, r *router.Router, reg *registry.Registry) *GatewayHandler {
	return &GatewayHandler{
		dispatcher: d,
		router:     r,
		registry:   reg,
	}
}

// SetCache enables the exact-match completion cache.
func (h *GatewayHandler) SetCache(c models.CompletionCache) {
	h.cache = c
}

// ChatCompletions is the submit path: validate the envelope, check the
// routing decision synchronously, enqueue, and block on the entry's
// completion handle until the worker resolves it.
func (h *GatewayHandler) ChatCompletions(c *gin.Context) {
	priority := models.Priority(c.DefaultQuery("priority", string(models.PriorityLow)))
	if priority != models.PriorityHigh && priority != models.PriorityLow {
		writeInvalid(c, "priority must be high or low")
		return
	}

	complexity := models.Complexity(c.Query("complexity"))
	switch complexity {
	case models.ComplexityNone, models.ComplexityEinstein, models.ComplexityUltra,
		models.ComplexityHigh, models.ComplexityLow:
	default:
		writeInvalid(c, "complexity must be einstein, ultra, high or low")
		return
	}

	override := c.Query("backend")

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, err.Error())
		return
	}
	if msg, ok := validateEnvelope(&req); !ok {
		writeInvalid(c, msg)
		return
	}

	key := cache.Key(&req, priority, complexity, override)
	if h.cache != nil {
		if cached, err := h.cache.Get(c.Request.Context(), key); err == nil && cached != nil {
			c.Header("X-Cache", "hit")
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	// Routing and admission errors are synchronous; the queue is not
	// touched for a request that cannot be served.
	resolved, err := h.router.Resolve(priority, complexity, override, "")
	if err != nil {
		writeError(c, err)
		return
	}

	// Deep-reasoning work gets the distinguished model variant unless the
	// caller pinned one. Set before enqueue; the envelope is immutable
	// after that.
	if complexity == models.ComplexityEinstein && req.Model == "" {
		if b, err := h.registry.Get(resolved); err == nil && b.ReasoningModel != "" {
			req.Model = b.ReasoningModel
		}
	}

	entry := queue.NewEntry(&req, priority, complexity, override)
	if err := h.dispatcher.Enqueue(entry); err != nil {
		writeError(c, err)
		return
	}

	outcome := entry.Wait()
	if outcome.Err != nil {
		writeError(c, outcome.Err)
		return
	}

	if h.cache != nil {
		_ = h.cache.Set(c.Request.Context(), key, outcome.Response)
	}

	c.JSON(http.StatusOK, outcome.Response)
}

// Embeddings runs against the default backend directly. Embedding calls
// are cheap relative to generation and do not take the accelerator queue.
func (h *GatewayHandler) Embeddings(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		writeInvalid(c, "text query parameter is required")
		return
	}
	model := c.Query("model")

	backend := h.registry.Default()
	embedder, ok := backend.Client.(models.Embedder)
	if !ok {
		writeInvalid(c, "default backend does not support embeddings")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), embedTimeout)
	defer cancel()

	resp, err := embedder.Embed(ctx, text, model)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func validateEnvelope(req *models.ChatRequest) (string, bool) {
	if len(req.Messages) == 0 {
		return "messages must not be empty", false
	}
	for _, m := range req.Messages {
		if m.Role == "" {
			return "every message needs a role", false
		}
	}
	if req.MaxTokens < 0 || req.MaxTokens > 8192 {
		return "max_tokens must be between 1 and 8192", false
	}
	if req.Temperature < 0 || req.Temperature > 2.0 {
		return "temperature must be between 0.0 and 2.0", false
	}
	if req.TopP < 0 || req.TopP > 1.0 {
		return "top_p must be between 0.0 and 1.0", false
	}
	return "", true
}

func writeInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{"code": "invalid_request", "message": msg},
	})
}

// writeError maps the error taxonomy onto stable wire codes. Partial
// successes never leave this layer: it is a complete completion object or
// a structured error.
func writeError(c *gin.Context, err error) {
	var unknown *models.UnknownBackendError
	if errors.As(err, &unknown) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "unknown_backend", "message": unknown.Error()},
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrReasoningUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "reasoning_unavailable", "message": err.Error()},
		})
	case errors.Is(err, models.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{"code": "queue_full", "message": err.Error()},
		})
	case errors.Is(err, models.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "shutting_down", "message": err.Error()},
		})
	default:
		var backendErr *models.BackendError
		if errors.As(err, &backendErr) && backendErr.Kind == models.ErrKindTimeout {
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": gin.H{"code": "backend_timeout", "message": err.Error()},
			})
			return
		}
		if errors.As(err, &backendErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error": gin.H{"code": "backend_unreachable", "message": err.Error()},
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": gin.H{"code": "backend_error", "message": err.Error()},
		})
	}
}
