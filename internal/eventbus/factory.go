package eventbus

import (
	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// New selects NATSBus when cfg.URL is set, falling back to an
// in-memory bus otherwise.
func New(cfg config.NATSConfig, log *logger.Logger) (Bus, error) {
	if cfg.URL == "" {
		return NewMemoryBus(log), nil
	}
	return NewNATSBus(cfg, log)
}
