// Package email sends ticket notifications to the employee over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/ticket"
)

const (
	DefaultPort      = 587
	DefaultSignature = "IT Support Team"
	defaultTimeout   = 15 * time.Second
)

// TLS modes accepted in Config.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Config describes the SMTP relay and how recipients are addressed.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	// From is the default sender, either a bare address or "Name <addr>".
	From string
	// Domain completes addresses derived from sender names.
	Domain string
	// Recipient, when set, receives every notification instead of the
	// employee.
	Recipient string
	Signature string
	Timeout   time.Duration
}

// Notifier mails ticket events to the employee who raised the ticket.
type Notifier struct {
	host      string
	opts      []mail.Option
	from      string
	domain    string
	recipient string
	signature string
	logger    log.Logger
}

// New validates cfg and returns a Notifier.
func New(cfg Config, logger log.Logger) (*Notifier, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Host == "" {
		return nil, errors.New("email: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("email: from address is required")
	}
	if cfg.Domain == "" && cfg.Recipient == "" {
		return nil, errors.New("email: recipient domain or fixed recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Signature == "" {
		cfg.Signature = DefaultSignature
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &Notifier{
		host:      cfg.Host,
		opts:      opts,
		from:      cfg.From,
		domain:    cfg.Domain,
		recipient: cfg.Recipient,
		signature: cfg.Signature,
		logger:    logger,
	}, nil
}

func tlsPolicy(mode string) (mail.TLSPolicy, error) {
	switch mode {
	case "", TLSMandatory:
		return mail.TLSMandatory, nil
	case TLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	}
	return mail.NoTLS, fmt.Errorf("email: unknown tls mode %q", mode)
}

// TicketCreated mails the ticket summary. opts.From replaces the sender for
// this message only: an address is used as is, a bare name becomes the
// display name on the default address.
func (n *Notifier) TicketCreated(ctx context.Context, t ticket.Ticket, opts ticket.NotifyOptions) error {
	text, html, err := n.createdBody(t)
	if err != nil {
		return err
	}
	return n.send(ctx, t, opts.From, "Ticket Created: "+t.Subject, text, html)
}

// TicketUpdated mails the status change.
func (n *Notifier) TicketUpdated(ctx context.Context, t ticket.Ticket, oldStatus, newStatus ticket.Status) error {
	text, html, err := n.updatedBody(t, oldStatus, newStatus)
	if err != nil {
		return err
	}
	return n.send(ctx, t, "", "Ticket Updated: "+t.Subject, text, html)
}

func (n *Notifier) send(ctx context.Context, t ticket.Ticket, from, subject, text, html string) error {
	to, err := n.recipientFor(t.Sender)
	if err != nil {
		return err
	}

	m := mail.NewMsg()
	if err := n.setFrom(m, from); err != nil {
		return fmt.Errorf("email: sender: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("email: recipient %q: %w", to, err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, text)
	m.AddAlternativeString(mail.TypeTextHTML, html)

	c, err := mail.NewClient(n.host, n.opts...)
	if err != nil {
		return fmt.Errorf("email: client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	n.logger.Info(ctx, "email notification sent", "ticket_id", t.ID, "to", to)
	return nil
}

func (n *Notifier) setFrom(m *mail.Msg, override string) error {
	switch {
	case override == "":
		return m.From(n.from)
	case strings.Contains(override, "@"):
		return m.From(override)
	}
	return m.FromFormat(override, bareAddress(n.from))
}

// bareAddress strips a display name from "Name <addr>".
func bareAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// recipientFor maps a ticket sender to a mailbox. Senders that already are
// addresses are used directly; "Asha Rao (E100)" becomes
// asha.rao@<domain>.
func (n *Notifier) recipientFor(sender string) (string, error) {
	if n.recipient != "" {
		return n.recipient, nil
	}
	sender = strings.TrimSpace(sender)
	if strings.Contains(sender, "@") {
		return sender, nil
	}
	name, _, _ := strings.Cut(sender, "(")
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return "", fmt.Errorf("email: no name in sender %q", sender)
	}
	return strings.Join(words, ".") + "@" + n.domain, nil
}

type createdView struct {
	ID            string
	Subject       string
	Priority      string
	PriorityColor string
	Category      string
	Team          string
	Signature     string
}

type updatedView struct {
	ID        string
	Subject   string
	OldStatus string
	NewStatus string
	Signature string
}

var createdHTML = template.Must(template.New("created").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2 style="color: #6366f1;">Ticket Created Successfully</h2>
<p>Hello,</p>
<p>Your IT support ticket has been created successfully.</p>
<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0;">
<p><strong>Ticket ID:</strong> {{.ID}}</p>
<p><strong>Subject:</strong> {{.Subject}}</p>
<p><strong>Priority:</strong> <span style="color: {{.PriorityColor}};">{{.Priority}}</span></p>
<p><strong>Category:</strong> {{.Category}}</p>
<p><strong>Assigned Team:</strong> {{.Team}}</p>
</div>
<p>You will receive updates as your ticket progresses.</p>
<p>Thank you,<br>{{.Signature}}</p>
</body>
</html>`))

var updatedHTML = template.Must(template.New("updated").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2 style="color: #6366f1;">Ticket Status Updated</h2>
<p>Hello,</p>
<p>Your IT support ticket status has been updated.</p>
<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0;">
<p><strong>Ticket ID:</strong> {{.ID}}</p>
<p><strong>Subject:</strong> {{.Subject}}</p>
<p><strong>Previous Status:</strong> {{.OldStatus}}</p>
<p><strong>New Status:</strong> <span style="color: #10b981;">{{.NewStatus}}</span></p>
</div>
<p>Thank you,<br>{{.Signature}}</p>
</body>
</html>`))

func (n *Notifier) createdBody(t ticket.Ticket) (string, string, error) {
	v := createdView{
		ID:            t.ID,
		Subject:       t.Subject,
		Priority:      strings.ToUpper(string(t.Priority)),
		Category:      title(string(t.Category)),
		Team:          t.AssignedTeam,
		Signature:     n.signature,
		PriorityColor: priorityColor(string(t.Priority)),
	}
	text := fmt.Sprintf(`Hello,

Your IT support ticket has been created successfully.

Ticket ID: %s
Subject: %s
Priority: %s
Category: %s
Assigned Team: %s

You will receive updates as your ticket progresses.

Thank you,
%s
`, v.ID, v.Subject, v.Priority, v.Category, v.Team, v.Signature)

	var buf bytes.Buffer
	if err := createdHTML.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("email: render created: %w", err)
	}
	return text, buf.String(), nil
}

func (n *Notifier) updatedBody(t ticket.Ticket, oldStatus, newStatus ticket.Status) (string, string, error) {
	v := updatedView{
		ID:        t.ID,
		Subject:   t.Subject,
		OldStatus: title(string(oldStatus)),
		NewStatus: title(string(newStatus)),
		Signature: n.signature,
	}
	text := fmt.Sprintf(`Hello,

Your IT support ticket status has been updated.

Ticket ID: %s
Subject: %s
Previous Status: %s
New Status: %s

Thank you,
%s
`, v.ID, v.Subject, v.OldStatus, v.NewStatus, v.Signature)

	var buf bytes.Buffer
	if err := updatedHTML.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("email: render updated: %w", err)
	}
	return text, buf.String(), nil
}

// title turns "in_progress" into "In Progress".
func title(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func priorityColor(p string) string {
	switch p {
	case "high":
		return "#ef4444"
	case "medium":
		return "#f59e0b"
	}
	return "#10b981"
}
