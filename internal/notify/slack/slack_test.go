package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
		Description:  "Started after the update.",
		Priority:     support.PriorityHigh,
		Category:     support.CategoryNetwork,
		AssignedTeam: "Network Team",
		Status:       ticket.StatusOpen,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func capture(t *testing.T) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		var m map[string]any
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode body: %v", err)
		}
		got = m
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func headerText(t *testing.T, msg map[string]any) string {
	t.Helper()
	blocks, ok := msg["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		t.Fatal("expected blocks array in payload")
	}
	return blocks[0].(map[string]any)["text"].(map[string]any)["text"].(string)
}

func TestTicketCreated_PostsToWebhook(t *testing.T) {
	t.Parallel()

	srv, got := capture(t)
	n := New(srv.URL, log.Nop())

	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}

	blocks := (*got)["blocks"].([]any)
	// header, divider, fields, divider, description, divider, context
	if len(blocks) != 7 {
		t.Fatalf("blocks = %d, want 7", len(blocks))
	}
	h := headerText(t, *got)
	if !strings.Contains(h, "VPN not connecting") || !strings.Contains(h, "\U0001f534") {
		t.Errorf("header = %q", h)
	}
	if _, ok := (*got)["username"]; ok {
		t.Error("username should be unset without a From override")
	}
}

func TestTicketCreated_FromOverride(t *testing.T) {
	t.Parallel()

	srv, got := capture(t)
	n := New(srv.URL, log.Nop())

	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{From: "IT Helpdesk"}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if (*got)["username"] != "IT Helpdesk" {
		t.Errorf("username = %v, want IT Helpdesk", (*got)["username"])
	}

	// the override must not leak into the next message
	if err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated: %v", err)
	}
	if _, ok := (*got)["username"]; ok {
		t.Error("username leaked from the previous call")
	}
}

func TestTicketUpdated(t *testing.T) {
	t.Parallel()

	srv, got := capture(t)
	n := New(srv.URL, log.Nop())

	tk := sample()
	tk.Status = ticket.StatusResolved
	if err := n.TicketUpdated(context.Background(), tk, ticket.StatusOpen, ticket.StatusResolved); err != nil {
		t.Fatalf("TicketUpdated: %v", err)
	}

	blocks := (*got)["blocks"].([]any)
	section := blocks[1].(map[string]any)["text"].(map[string]any)["text"].(string)
	if !strings.Contains(section, "open") || !strings.Contains(section, "resolved") {
		t.Errorf("status section = %q", section)
	}
	if h := headerText(t, *got); !strings.Contains(h, "✅") {
		t.Errorf("header = %q, want check mark", h)
	}
}

func TestNoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("", log.Nop())
	if err := n.TicketCreated(context.Background(), ticket.Ticket{}, ticket.NotifyOptions{}); err != nil {
		t.Fatalf("TicketCreated with empty URL should be no-op, got: %v", err)
	}
	if err := n.TicketUpdated(context.Background(), ticket.Ticket{}, ticket.StatusOpen, ticket.StatusResolved); err != nil {
		t.Fatalf("TicketUpdated with empty URL should be no-op, got: %v", err)
	}
}

func TestTruncatesLongDescription(t *testing.T) {
	t.Parallel()

	tk := sample()
	tk.Description = strings.Repeat("x", 4000)
	msg := createdMessage(tk, "")

	blocks := msg["blocks"].([]map[string]any)
	text := blocks[4]["text"].(map[string]any)["text"].(string)
	prefix := "*Description*\n\n"
	if len(text) > maxDescriptionLen+len(prefix) {
		t.Errorf("description length = %d, expected <= %d", len(text), maxDescriptionLen+len(prefix))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated description to end with ...")
	}
}

func TestPriorityEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		priority support.Priority
		want     string
	}{
		{support.PriorityHigh, "\U0001f534"},
		{support.PriorityMedium, "\U0001f7e1"},
		{support.PriorityLow, "\U0001f7e2"},
		{"", "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			t.Parallel()
			if got := priorityEmoji(tt.priority); got != tt.want {
				t.Errorf("priorityEmoji(%q) = %q, want %q", tt.priority, got, tt.want)
			}
		})
	}
}

func FuzzCreatedMessage(f *testing.F) {
	f.Add("VPN down", "since morning", "Asha (E1)", "")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "x", "bot")
	f.Add("subj\x00\x01", "desc\nline", "s\ttab", "f\x00rom")
	f.Add(strings.Repeat("A", 5000), strings.Repeat("x", 10000), "s", "from")

	f.Fuzz(func(t *testing.T, subject, description, sender, from string) {
		tk := sample()
		tk.Subject, tk.Description, tk.Sender = subject, description, sender

		data, err := json.Marshal(createdMessage(tk, from))
		if err != nil {
			t.Fatalf("createdMessage produced non-marshalable output: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("createdMessage JSON does not round-trip: %v", err)
		}
		if blocks, ok := decoded["blocks"].([]any); !ok || len(blocks) != 7 {
			t.Fatalf("expected 7 blocks, got %v", decoded["blocks"])
		}
	})
}

func TestNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := New(srv.URL, log.Nop())
	err := n.TicketCreated(context.Background(), sample(), ticket.NotifyOptions{})
	if err == nil {
		t.Fatal("expected error on non-OK status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want to contain status code 500", err.Error())
	}
}
