// Package slack sends ticket notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

const (
	maxDescriptionLen = 3000
	httpTimeout       = 10 * time.Second
)

// Notifier posts ticket events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. If webhookURL is empty, every send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// TicketCreated announces a new ticket. opts.From becomes the webhook
// username for this message only.
func (n *Notifier) TicketCreated(ctx context.Context, t ticket.Ticket, opts ticket.NotifyOptions) error {
	return n.post(ctx, createdMessage(t, opts.From))
}

// TicketUpdated announces a status change.
func (n *Notifier) TicketUpdated(ctx context.Context, t ticket.Ticket, oldStatus, newStatus ticket.Status) error {
	return n.post(ctx, updatedMessage(t, oldStatus, newStatus))
}

func (n *Notifier) post(ctx context.Context, msg map[string]any) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "status", resp.StatusCode)
	return nil
}

func createdMessage(t ticket.Ticket, from string) map[string]any {
	msg := map[string]any{
		"blocks": []map[string]any{
			header(fmt.Sprintf("%s New Ticket: %s", priorityEmoji(t.Priority), t.Subject)),
			{"type": "divider"},
			fieldsBlock(t),
			{"type": "divider"},
			descriptionBlock(t),
			{"type": "divider"},
			contextBlock(t, t.CreatedAt),
		},
	}
	if from != "" {
		msg["username"] = from
	}
	return msg
}

func updatedMessage(t ticket.Ticket, oldStatus, newStatus ticket.Status) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			header(fmt.Sprintf("%s Ticket Updated: %s", statusEmoji(newStatus), t.Subject)),
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Status:* %s → %s", oldStatus, newStatus),
				},
			},
			contextBlock(t, t.UpdatedAt),
		},
	}
}

func header(text string) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(t ticket.Ticket) map[string]any {
	field := func(label string, v any) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s:* %v", label, v)}
	}
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			field("Employee", t.Sender),
			field("Category", t.Category),
			field("Priority", t.Priority),
			field("Team", t.AssignedTeam),
			field("Source", t.Source),
			field("Status", t.Status),
		},
	}
}

func descriptionBlock(t ticket.Ticket) map[string]any {
	text := truncate(t.Description, maxDescriptionLen)
	if text == "" {
		text = "_No description._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Description*\n\n%s", text),
		},
	}
}

func contextBlock(t ticket.Ticket, ts time.Time) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("deskside • ticket %s • %s", t.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func priorityEmoji(p support.Priority) string {
	switch p {
	case support.PriorityHigh:
		return "\U0001f534" // red circle
	case support.PriorityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func statusEmoji(s ticket.Status) string {
	switch s {
	case ticket.StatusResolved:
		return "✅" // check mark
	case ticket.StatusInProgress:
		return "\U0001f6e0" // hammer and wrench
	default:
		return "\U0001f4e5" // inbox tray
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
