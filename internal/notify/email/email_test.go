package email

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

func sample() ticket.Ticket {
	at := time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC)
	return ticket.Ticket{
		ID:           "01JN123",
		Source:       ticket.SourceChatbot,
		Sender:       "Asha Rao (E100)",
		Subject:      "VPN not connecting",
		Priority:     support.PriorityHigh,
		Category:     support.CategoryNetwork,
		AssignedTeam: "Network Team",
		Status:       ticket.StatusOpen,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// delivery is one message accepted by the fake relay.
type delivery struct {
	from string
	rcpt []string
	data string
}

// fakeSMTP runs a minimal plaintext SMTP relay on loopback that accepts
// everything and reports each message on the returned channel.
func fakeSMTP(t *testing.T) (string, int, <-chan delivery) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan delivery, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSMTP(conn, out)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func serveSMTP(conn net.Conn, out chan<- delivery) {
	tp := textproto.NewConn(conn)
	defer func() { _ = tp.Close() }()

	var d delivery
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			_ = tp.PrintfLine("250 localhost")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			d.from = pathArg(line[len("MAIL FROM:"):])
			_ = tp.PrintfLine("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			d.rcpt = append(d.rcpt, pathArg(line[len("RCPT TO:"):]))
			_ = tp.PrintfLine("250 OK")
		case upper == "DATA":
			_ = tp.PrintfLine("354 end with <CRLF>.<CRLF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			d.data = string(data)
			_ = tp.PrintfLine("250 OK queued")
			out <- d
			d = delivery{}
		case upper == "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 OK")
		}
	}
}

func pathArg(s string) string {
	s = strings.TrimSpace(s)
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	return strings.Trim(s, "<>")
}

func newTestNotifier(t *testing.T, mut func(*Config)) (*Notifier, <-chan delivery) {
	t.Helper()
	host, port, out := fakeSMTP(t)
	cfg := Config{
		Host:    host,
		Port:    port,
		TLS:     TLSNone,
		From:    "IT Support <it@corp.example>",
		Domain:  "corp.example",
		Timeout: 5 * time.Second,
	}
	if mut != nil {
		mut(&cfg)
	}
	n, err := New(cfg, log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n, out
}

func next(t *testing.T, out <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-out:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
	return delivery{}
}

func TestTicketCreated_MailsDerivedRecipient(t *testing.T) {
	t.Parallel()

	n, out := newTestNotifier(t, nil)
	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}

	d := next(t, out)
	if d.from != "it@corp.example" {
		t.Errorf("envelope from = %q, want it@corp.example", d.from)
	}
	if len(d.rcpt) != 1 || d.rcpt[0] != "asha.rao@corp.example" {
		t.Errorf("rcpt = %v, want [asha.rao@corp.example]", d.rcpt)
	}
	for _, want := range []string{
		"Subject: Ticket Created: VPN not connecting",
		"Ticket ID: 01JN123",
		"Priority: HIGH",
		"Category: Network",
		"Assigned Team: Network Team",
		"text/html",
	} {
		if !strings.Contains(d.data, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestTicketCreated_FromIsPerCall(t *testing.T) {
	t.Parallel()

	n, out := newTestNotifier(t, nil)
	ctx := context.Background()

	if err := n.TicketCreated(ctx, sample(), ticket.NotifyOptions{From: "helpdesk-bot@corp.example"}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if d := next(t, out); d.from != "helpdesk-bot@corp.example" {
		t.Errorf("override from = %q", d.from)
	}

	if err := n.TicketCreated(ctx, sample(), ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if d := next(t, out); d.from != "it@corp.example" {
		t.Errorf("override leaked into next send: from = %q", d.from)
	}

	if err := n.TicketCreated(ctx, sample(), ticket.NotifyOptions{From: "IT Helpdesk"}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	d := next(t, out)
	if d.from != "it@corp.example" || !strings.Contains(d.data, "IT Helpdesk") {
		t.Errorf("display-name override: from = %q", d.from)
	}
}

func TestTicketUpdated(t *testing.T) {
	t.Parallel()

	n, out := newTestNotifier(t, nil)
	tk := sample()
	tk.Status = ticket.StatusInProgress
	if err := n.TicketUpdated(context.Background(), tk, ticket.StatusOpen, ticket.StatusInProgress); err != nil {
		t.Fatalf("TicketUpdated: %v", err)
	}

	d := next(t, out)
	for _, want := range []string{
		"Subject: Ticket Updated: VPN not connecting",
		"Previous Status: Open",
		"New Status: In Progress",
	} {
		if !strings.Contains(d.data, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestFixedRecipient(t *testing.T) {
	t.Parallel()

	n, out := newTestNotifier(t, func(c *Config) { c.Recipient = "qa@corp.example" })
	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if d := next(t, out); len(d.rcpt) != 1 || d.rcpt[0] != "qa@corp.example" {
		t.Errorf("rcpt = %v, want [qa@corp.example]", d.rcpt)
	}
}

func TestRecipientFor(t *testing.T) {
	t.Parallel()

	n := &Notifier{domain: "corp.example"}
	tests := []struct {
		sender  string
		want    string
		wantErr bool
	}{
		{"Asha Rao (E100)", "asha.rao@corp.example", false},
		{"  Vikram   Singh  ", "vikram.singh@corp.example", false},
		{"meera@corp.example", "meera@corp.example", false},
		{"(E300)", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := n.recipientFor(tt.sender)
		if (err != nil) != tt.wantErr {
			t.Errorf("recipientFor(%q) err = %v, wantErr %v", tt.sender, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("recipientFor(%q) = %q, want %q", tt.sender, got, tt.want)
		}
	}
}

func TestCreatedBody_EscapesHTML(t *testing.T) {
	t.Parallel()

	n := &Notifier{signature: DefaultSignature}
	tk := sample()
	tk.Subject = "<script>alert(1)</script>"
	text, html, err := n.createdBody(tk)
	if err != nil {
		t.Fatalf("createdBody: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("html body contains unescaped subject")
	}
	if !strings.Contains(text, tk.Subject) {
		t.Error("text body should carry the subject verbatim")
	}
	if !strings.Contains(html, "#ef4444") {
		t.Error("high priority should be colored red")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	base := Config{Host: "smtp.corp.example", From: "it@corp.example", Domain: "corp.example"}
	tests := []struct {
		name    string
		mut     func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"fixed recipient instead of domain", func(c *Config) { c.Domain, c.Recipient = "", "qa@corp.example" }, false},
		{"with auth", func(c *Config) { c.Username, c.Password = "u", "p" }, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"missing from", func(c *Config) { c.From = "" }, true},
		{"no way to address", func(c *Config) { c.Domain = "" }, true},
		{"unknown tls mode", func(c *Config) { c.TLS = "sometimes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mut(&cfg)
			_, err := New(cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSend_RelayUnavailable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	n, err := New(Config{
		Host: "127.0.0.1", Port: port, TLS: TLSNone,
		From: "it@corp.example", Domain: "corp.example", Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{}); err == nil {
		t.Error("expected error when the relay is down")
	}
}
