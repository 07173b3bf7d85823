// Package sources registers every source connector with the global registry.
// Import it for its side effects.
package sources

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/bronto-tap/pkg/config"
	"github.com/ajitpratap0/bronto-tap/pkg/connector/registry"

	// Import all source connectors to trigger init() registration
	"github.com/ajitpratap0/bronto-tap/pkg/connector/sources/bronto"
)

// NewBrontoSource creates a Bronto source connector.
func NewBrontoSource(cfg *config.Config, logger *zap.Logger) (registry.Source, error) {
	return bronto.NewSource(cfg, logger)
}
