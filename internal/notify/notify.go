// Package notify sends optional ops notifications to Slack (SPEC_FULL §4.7),
// adapted from the teacher's pkg/slack notifier: same noop-when-unconfigured
// shape and Block Kit message building, built for sync-run and webhook
// events instead of incident alerts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/tx-stripe/stripe-sync-engine/internal/backfill"
)

// Notifier posts sync engine events to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken or channel is empty the notifier is a
// noop (logging only) — Slack notifications are optional (SPEC_FULL §4.7).
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this notifier can actually post.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostRunSummary notifies the configured channel about a completed
// processUntilDone run, highlighting any kind that ended in error.
func (n *Notifier) PostRunSummary(ctx context.Context, accountID string, results backfill.ProcessUntilDoneResult) error {
	failed := failedKinds(results)

	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping run summary",
			"account_id", accountID, "failed_kinds", failed)
		return nil
	}

	blocks := runSummaryBlocks(accountID, results, failed)
	text := fmt.Sprintf("sync run complete for %s (%d kind(s) failed)", accountID, len(failed))

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("posting run summary to slack: %w", err)
	}
	return nil
}

// PostWebhookFailure notifies the configured channel about a webhook
// delivery that could not be processed.
func (n *Notifier) PostWebhookFailure(ctx context.Context, accountID, eventType string, cause error) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping webhook failure alert",
			"account_id", accountID, "event_type", eventType, "error", cause)
		return nil
	}

	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "🔴 webhook processing failed", true, false),
	)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Account:* %s", accountID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Event type:* %s", eventType), false, false),
	}
	section := goslack.NewSectionBlock(nil, fields, nil)
	detail := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncate(cause.Error(), 500), false, false), nil, nil,
	)

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(header, section, detail),
		goslack.MsgOptionText(fmt.Sprintf("webhook processing failed for %s: %s", accountID, eventType), false),
	)
	if err != nil {
		return fmt.Errorf("posting webhook failure to slack: %w", err)
	}
	return nil
}

func failedKinds(results backfill.ProcessUntilDoneResult) []string {
	var failed []string
	for kind, r := range results {
		if r.Errors > 0 {
			failed = append(failed, kind)
		}
	}
	return failed
}

func runSummaryBlocks(accountID string, results backfill.ProcessUntilDoneResult, failed []string) []goslack.Block {
	emoji := "🟢"
	title := "sync run complete"
	if len(failed) > 0 {
		emoji = "🟡"
		title = "sync run complete with errors"
	}

	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, fmt.Sprintf("%s %s", emoji, title), true, false),
	)

	var synced int
	for _, r := range results {
		synced += r.Synced
	}

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Account:* %s", accountID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Objects synced:* %d", synced), false, false),
	}
	blocks := []goslack.Block{header, goslack.NewSectionBlock(nil, fields, nil)}

	if len(failed) > 0 {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Failed kinds:* %s", truncate(fmt.Sprint(failed), 500)), false, false),
			nil, nil,
		))
	}

	return blocks
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
