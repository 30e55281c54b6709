package notifier

import (
	"fmt"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
)

// New selects a Notifier implementation per cfg.Notifier.Provider.
func New(cfg config.NotifierConfig, authorizedPrincipals []string, log *logger.Logger) (Notifier, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogNotifier(authorizedPrincipals, log), nil
	case "slack":
		return NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, authorizedPrincipals, log), nil
	default:
		return nil, fmt.Errorf("unknown notifier provider %q", cfg.Provider)
	}
}
