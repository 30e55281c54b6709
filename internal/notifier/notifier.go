// Package notifier implements the bot/notifier interface the update
// pipeline reports phase progress through: send/react plus the
// authorization predicate shared with the Update Queue.
package notifier

import "context"

// Notifier is the minimal capability set spec.md §6 requires of a bot
// integration.
type Notifier interface {
	Send(ctx context.Context, channel, message string) error
	React(ctx context.Context, messageID, marker string) error
	Authorize(ctx context.Context, principal string) bool
	AuthorizedPrincipals(ctx context.Context) []string
}

// Phase-progress markers used when reacting to or composing update
// notifications.
const (
	MarkerProcessing = "hourglass"
	MarkerPlanning   = "memo"
	MarkerStarting   = "rocket"
	MarkerWorking    = "gear"
	MarkerRestarting = "arrows_counterclockwise"
	MarkerSuccess    = "white_check_mark"
	MarkerFailure    = "x"
)
