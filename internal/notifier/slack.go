package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/driftcode/orchestra/internal/common/logger"
)

// SlackNotifier posts update-pipeline phase events to a Slack channel
// via a bot token. Reactions are added to the message most recently
// sent, since the update pipeline sends one message per phase.
type SlackNotifier struct {
	client      *slack.Client
	channel     string
	authorized  map[string]bool
	log         *logger.Logger
	lastMessage string
}

// NewSlackNotifier constructs a SlackNotifier against botToken,
// posting to defaultChannel.
func NewSlackNotifier(botToken, defaultChannel string, authorizedPrincipals []string, log *logger.Logger) *SlackNotifier {
	authorized := make(map[string]bool, len(authorizedPrincipals))
	for _, p := range authorizedPrincipals {
		authorized[p] = true
	}
	return &SlackNotifier{
		client:     slack.New(botToken),
		channel:    defaultChannel,
		authorized: authorized,
		log:        log,
	}
}

// Send posts message to channel (or the notifier's default channel
// when channel is empty).
func (n *SlackNotifier) Send(_ context.Context, channel, message string) error {
	target := channel
	if target == "" {
		target = n.channel
	}
	_, timestamp, err := n.client.PostMessage(target, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack post message failed: %w", err)
	}
	n.lastMessage = timestamp
	return nil
}

// React adds an emoji reaction identified by marker to messageID (a
// Slack message timestamp). An empty messageID reacts to the most
// recently sent message.
func (n *SlackNotifier) React(_ context.Context, messageID, marker string) error {
	target := messageID
	if target == "" {
		target = n.lastMessage
	}
	if target == "" {
		return fmt.Errorf("no message to react to")
	}
	ref := slack.NewRefToMessage(n.channel, target)
	if err := n.client.AddReaction(marker, ref); err != nil {
		return fmt.Errorf("slack add reaction failed: %w", err)
	}
	return nil
}

func (n *SlackNotifier) Authorize(_ context.Context, principal string) bool {
	return n.authorized[principal]
}

func (n *SlackNotifier) AuthorizedPrincipals(_ context.Context) []string {
	principals := make([]string, 0, len(n.authorized))
	for p := range n.authorized {
		principals = append(principals, p)
	}
	return principals
}
