package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swarmworks/hivegate/src/models"
)

// Health is always reachable without a token so supervisory tooling can
// probe liveness. The gateway is healthy as long as one backend is usable.
func (h *GatewayHandler) Health(c *gin.Context) {
	stats := h.dispatcher.Stats()

	status := "degraded"
	if h.registry.AnyUsable() {
		status = "healthy"
	}

	c.JSON(http.StatusOK, models.HealthReport{
		Status:            status,
		Backends:          h.registry.List(),
		QueueDepth:        stats.QueueDepth,
		GPUStarvationRisk: starvationRisk(stats.QueueDepth),
		MeanLatencyMs:     stats.MeanLatencyMs,
		InFlight:          stats.InFlight,
		Timestamp:         time.Now(),
	})
}

// starvationRisk derives the risk that low-priority work waits
// indefinitely behind higher-priority entries. Strict priority ordering
// has no enqueue deadline, so depth is the only early signal.
func starvationRisk(depth int) string {
	switch {
	case depth < 3:
		return "low"
	case depth <= 7:
		return "medium"
	default:
		return "high"
	}
}

func (h *GatewayHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Stats())
}

func (h *GatewayHandler) ListBackends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": h.registry.List()})
}

func (h *GatewayHandler) ListModels(c *gin.Context) {
	name := c.Query("backend")
	if name == "" {
		writeInvalid(c, "backend query parameter is required")
		return
	}

	backend, err := h.registry.Get(name)
	if err != nil {
		writeError(c, err)
		return
	}

	modelNames := []string{backend.Model}
	if backend.ReasoningModel != "" {
		modelNames = append(modelNames, backend.ReasoningModel)
	}

	c.JSON(http.StatusOK, gin.H{
		"backend": backend.Name,
		"models":  modelNames,
	})
}

// ProbeBackend refreshes a backend's availability state on demand; nothing
// polls in the background.
func (h *GatewayHandler) ProbeBackend(c *gin.Context) {
	name := c.Param("name")

	status, err := h.registry.Probe(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"backend": name,
		"status":  string(status),
	})
}
