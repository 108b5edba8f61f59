package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/swarmworks/hivegate/src/mocks"
	"github.com/swarmworks/hivegate/src/models"
	"github.com/swarmworks/hivegate/src/queue"
	"github.com/swarmworks/hivegate/src/registry"
	"github.com/swarmworks/hivegate/src/router"
)

type gatewayFixture struct {
	handler    *GatewayHandler
	dispatcher *queue.Dispatcher
	clients    map[string]*mocks.MockBackendClient
}

// setupGateway builds the full local/titan/deepseek wiring with mock
// clients. runWorker controls whether the dispatcher loop is live.
func setupGateway(t *testing.T, cfg queue.Config, probed map[string]bool, runWorker bool) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(0)
	clients := make(map[string]*mocks.MockBackendClient)
	kinds := map[string]registry.Kind{"local": registry.KindLocal, "titan": registry.KindRemote, "deepseek": registry.KindCloud}
	for _, name := range []string{"local", "titan", "deepseek"} {
		client := new(mocks.MockBackendClient)
		if alive, ok := probed[name]; ok {
			client.On("Probe", mock.Anything).Return(alive)
		}
		clients[name] = client
		require.NoError(t, reg.Register(&registry.Backend{
			Name:           name,
			Kind:           kinds[name],
			Model:          name + "-model",
			ReasoningModel: map[string]string{"deepseek": "deepseek-reasoner"}[name],
			Default:        name == "local",
			Client:         client,
		}))
	}
	require.NoError(t, reg.Validate())
	for name := range probed {
		_, err := reg.Probe(context.Background(), name)
		require.NoError(t, err)
	}

	rt := router.New(reg)
	d := queue.NewDispatcher(reg, rt, cfg)
	if runWorker {
		go d.Run()
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			d.Shutdown(ctx)
		})
	}

	return &gatewayFixture{
		handler:    NewGatewayHandler(d, rt, reg),
		dispatcher: d,
		clients:    clients,
	}
}

func postCompletion(t *testing.T, h *GatewayHandler, query string, req models.ChatRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/v1/chat/completions"+query, bytes.NewBuffer(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.ChatCompletions(c)
	return w
}

func userMessage(content string) models.ChatRequest {
	return models.ChatRequest{Messages: []models.Message{{Role: "user", Content: content}}}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestChatCompletions_LowComplexityRoutesLocal(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true, "titan": false, "deepseek": false}, true)

	f.clients["local"].On("Invoke", mock.Anything, mock.Anything).Return(&models.ChatResponse{
		ID:      "chatcmpl-1",
		Model:   "local-model",
		Choices: []models.Choice{{Message: models.Message{Role: "assistant", Content: "4"}, FinishReason: "stop"}},
		Usage:   models.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
	}, nil)

	w := postCompletion(t, f.handler, "?priority=high&complexity=low", userMessage("What is 2+2?"))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "local", resp.Backend)
	assert.Equal(t, "4", resp.Choices[0].Message.Content)

	f.clients["local"].AssertExpectations(t)
}

func TestChatCompletions_EinsteinUsesReasoningModel(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true, "deepseek": true}, true)

	f.clients["deepseek"].On("Invoke", mock.Anything, mock.MatchedBy(func(req *models.ChatRequest) bool {
		return req.Model == "deepseek-reasoner"
	})).Return(&models.ChatResponse{
		ID:    "chatcmpl-2",
		Model: "deepseek-reasoner",
		Choices: []models.Choice{{Message: models.Message{
			Role:             "assistant",
			Content:          "42",
			ReasoningContent: "let me think this through",
		}, FinishReason: "stop"}},
	}, nil)

	w := postCompletion(t, f.handler, "?complexity=einstein", userMessage("prove it"))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "deepseek", resp.Backend)
	assert.NotEmpty(t, resp.Choices[0].Message.ReasoningContent)

	f.clients["deepseek"].AssertExpectations(t)
}

func TestChatCompletions_ReasoningUnavailable(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true, "deepseek": false}, false)

	w := postCompletion(t, f.handler, "?complexity=einstein", userMessage("prove it"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "reasoning_unavailable", errorCode(t, w))
	// Rejected synchronously; nothing was enqueued.
	assert.Equal(t, 0, f.dispatcher.Depth())
}

func TestChatCompletions_UnknownBackendOverride(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	w := postCompletion(t, f.handler, "?backend=nonexistent", userMessage("hi"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_backend", errorCode(t, w))
	assert.Equal(t, 0, f.dispatcher.Depth())
}

func TestChatCompletions_ValidationBounds(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	cases := []struct {
		name string
		req  models.ChatRequest
	}{
		{"empty messages", models.ChatRequest{Messages: []models.Message{}}},
		{"missing role", models.ChatRequest{Messages: []models.Message{{Content: "hi"}}}},
		{"temperature too high", func() models.ChatRequest {
			r := userMessage("hi")
			r.Temperature = 2.5
			return r
		}()},
		{"max_tokens too high", func() models.ChatRequest {
			r := userMessage("hi")
			r.MaxTokens = 8193
			return r
		}()},
		{"top_p too high", func() models.ChatRequest {
			r := userMessage("hi")
			r.TopP = 1.5
			return r
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postCompletion(t, f.handler, "", tc.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", errorCode(t, w))
		})
	}
}

func TestChatCompletions_InvalidPriority(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	w := postCompletion(t, f.handler, "?priority=urgent", userMessage("hi"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorCode(t, w))
}

func TestChatCompletions_QueueFull(t *testing.T) {
	f := setupGateway(t, queue.Config{Capacity: 1}, map[string]bool{"local": true}, false)

	require.NoError(t, f.dispatcher.Enqueue(queue.NewEntry(&models.ChatRequest{
		Messages: []models.Message{{Role: "user", Content: "occupies the slot"}},
	}, models.PriorityLow, models.ComplexityNone, "")))

	w := postCompletion(t, f.handler, "", userMessage("hi"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "queue_full", errorCode(t, w))
	assert.Equal(t, 1, f.dispatcher.Depth())
}

func TestChatCompletions_CacheHit(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	cached := &models.ChatResponse{
		ID:      "chatcmpl-cached",
		Model:   "local-model",
		Backend: "local",
		Choices: []models.Choice{{Message: models.Message{Role: "assistant", Content: "cached answer"}, FinishReason: "stop"}},
	}
	mockCache := new(mocks.MockCache)
	mockCache.On("Get", mock.Anything, mock.Anything).Return(cached, nil)
	f.handler.SetCache(mockCache)

	w := postCompletion(t, f.handler, "", userMessage("hi"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	// A hit never consumes the accelerator queue.
	assert.Equal(t, 0, f.dispatcher.Depth())

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chatcmpl-cached", resp.ID)

	mockCache.AssertExpectations(t)
}

func TestHealth_DegradedWithoutUsableBackends(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": false, "titan": false, "deepseek": false}, false)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)
	f.handler.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var report models.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Len(t, report.Backends, 3)
}

func TestHealth_HealthyWithOneUsableBackend(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true, "titan": false, "deepseek": false}, false)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)
	f.handler.Health(c)

	var report models.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "healthy", report.Status)
}

func TestHealth_StarvationRisk(t *testing.T) {
	// Worker deliberately not running: entries pile up.
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	for i := 0; i < 8; i++ {
		require.NoError(t, f.dispatcher.Enqueue(queue.NewEntry(&models.ChatRequest{
			Messages: []models.Message{{Role: "user", Content: "queued"}},
		}, models.PriorityLow, models.ComplexityNone, "")))
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health", nil)
	f.handler.Health(c)

	var report models.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 8, report.QueueDepth)
	assert.Equal(t, "high", report.GPUStarvationRisk)
}

func TestStarvationRiskThresholds(t *testing.T) {
	assert.Equal(t, "low", starvationRisk(0))
	assert.Equal(t, "low", starvationRisk(2))
	assert.Equal(t, "medium", starvationRisk(3))
	assert.Equal(t, "medium", starvationRisk(7))
	assert.Equal(t, "high", starvationRisk(8))
}

func TestListModels(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/models?backend=deepseek", nil)
	f.handler.ListModels(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Backend string   `json:"backend"`
		Models  []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "deepseek", body.Backend)
	assert.Equal(t, []string{"deepseek-model", "deepseek-reasoner"}, body.Models)
}

func TestListModels_UnknownBackend(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/models?backend=nope", nil)
	f.handler.ListModels(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_backend", errorCode(t, w))
}

func TestStats(t *testing.T) {
	f := setupGateway(t, queue.Config{}, map[string]bool{"local": true}, false)

	require.NoError(t, f.dispatcher.Enqueue(queue.NewEntry(&models.ChatRequest{
		Messages: []models.Message{{Role: "user", Content: "queued"}},
	}, models.PriorityHigh, models.ComplexityNone, "")))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/stats", nil)
	f.handler.Stats(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var stats models.StatsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.HighPriorityRequests)
	assert.Equal(t, 1, stats.QueueDepth)
}

func TestProbeBackend(t *testing.T) {
	f := setupGateway(t, queue.Config{}, nil, false)

	f.clients["titan"].On("Probe", mock.Anything).Return(true)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/backends/titan/probe", nil)
	c.Params = gin.Params{{Key: "name", Value: "titan"}}
	f.handler.ProbeBackend(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Backend string `json:"backend"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "titan", body.Backend)
	assert.Equal(t, "connected", body.Status)
}
