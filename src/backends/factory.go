package backends

import (
	"fmt"

	"github.com/swarmworks/hivegate/src/config"
	"github.com/swarmworks/hivegate/src/models"
)

// NewClient builds the adapter matching a configured backend kind.
func NewClient(cfg config.BackendConfig) (models.BackendClient, error) {
	switch cfg.Kind {
	case "local":
		return NewLocalClient(cfg.Name, cfg.Endpoint, cfg.Model)
	case "remote":
		return NewRemoteClient(cfg.Name, cfg.Endpoint, cfg.APIKey, cfg.Model)
	case "cloud":
		return NewCloudClient(cfg.Name, cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.ReasoningModel)
	default:
		return nil, &models.ConfigError{Reason: fmt.Sprintf("unknown backend kind %q", cfg.Kind)}
	}
}
