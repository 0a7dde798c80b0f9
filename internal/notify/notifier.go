// Package notify posts best-effort Slack notifications for control-plane
// failure events (environment provisioning failures, run dispatch failures,
// run timeouts). Trimmed to the single "post a message, no-op if
// unconfigured" concern SparkPilot needs.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Event describes a control-plane failure worth surfacing to humans.
type Event struct {
	Kind       string // e.g. "environment.provisioning_failed", "run.timed_out", "run.dispatch_failed"
	TenantName string
	ResourceID string
	Reason     string
}

// Notifier posts Event notifications to a configured Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty, the notifier is a no-op
// (every call just logs at debug level).
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyFailure posts a failure notification. Errors are logged, not
// returned — a failed Slack post must never fail the operation that
// triggered it.
func (n *Notifier) NotifyFailure(ctx context.Context, e Event) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping failure notification",
			"kind", e.Kind, "resource_id", e.ResourceID)
		return
	}

	text := fmt.Sprintf(":rotating_light: %s — tenant=%s resource=%s reason=%s",
		e.Kind, e.TenantName, e.ResourceID, e.Reason)

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Error("posting failure notification to slack", "error", err, "kind", e.Kind)
		return
	}

	n.logger.Info("posted failure notification to slack", "kind", e.Kind, "resource_id", e.ResourceID)
}
