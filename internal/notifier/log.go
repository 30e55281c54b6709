package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/logger"
)

// LogNotifier is the default Notifier: it logs every send/react
// structurally and never fails, suited to deployments with no external
// chat integration configured.
type LogNotifier struct {
	log        *logger.Logger
	authorized map[string]bool
}

// NewLogNotifier constructs a LogNotifier authorizing the given
// principals.
func NewLogNotifier(authorizedPrincipals []string, log *logger.Logger) *LogNotifier {
	authorized := make(map[string]bool, len(authorizedPrincipals))
	for _, p := range authorizedPrincipals {
		authorized[p] = true
	}
	return &LogNotifier{log: log, authorized: authorized}
}

func (n *LogNotifier) Send(_ context.Context, channel, message string) error {
	n.log.Info("notifier send", zap.String("channel", channel), zap.String("message", message))
	return nil
}

func (n *LogNotifier) React(_ context.Context, messageID, marker string) error {
	n.log.Info("notifier react", zap.String("message_id", messageID), zap.String("marker", marker))
	return nil
}

func (n *LogNotifier) Authorize(_ context.Context, principal string) bool {
	return n.authorized[principal]
}

func (n *LogNotifier) AuthorizedPrincipals(_ context.Context) []string {
	principals := make([]string, 0, len(n.authorized))
	for p := range n.authorized {
		principals = append(principals, p)
	}
	return principals
}
