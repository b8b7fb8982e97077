package ticket_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
	"github.com/linnemanlabs/deskside/internal/ticket/memstore"
)

type teams map[support.Category]string

func (m teams) AssignTeam(c support.Category) string {
	if t, ok := m[c]; ok {
		return t
	}
	return "General IT Support"
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []ticket.Ticket
	froms   []string
	updates [][2]ticket.Status
	err     error
}

func (n *recordingNotifier) TicketCreated(_ context.Context, t ticket.Ticket, opts ticket.NotifyOptions) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, t)
	n.froms = append(n.froms, opts.From)
	return n.err
}

func (n *recordingNotifier) TicketUpdated(_ context.Context, _ ticket.Ticket, oldStatus, newStatus ticket.Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, [2]ticket.Status{oldStatus, newStatus})
	return n.err
}

func newService(n ticket.Notifier, hooks ticket.ServiceHooks) *ticket.Service {
	return ticket.NewService(memstore.New(), teams{support.CategoryNetwork: "Network Team"}, n, nil, hooks)
}

func TestCreate_Defaults(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	svc := newService(n, ticket.ServiceHooks{})

	got, err := svc.Create(context.Background(), ticket.NewTicket{
		Source:  ticket.SourceEmail,
		Sender:  "  Meera (E300) ",
		Subject: "laptop fan noisy",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.Wait()

	if got.ID == "" {
		t.Error("expected generated id")
	}
	if got.Priority != support.PriorityMedium {
		t.Errorf("Priority = %q, want medium", got.Priority)
	}
	if got.Category != support.CategoryOther {
		t.Errorf("Category = %q, want other", got.Category)
	}
	if got.AssignedTeam != "General IT Support" {
		t.Errorf("AssignedTeam = %q", got.AssignedTeam)
	}
	if got.Status != ticket.StatusOpen {
		t.Errorf("Status = %q, want open", got.Status)
	}
	if got.Sender != "Meera (E300)" {
		t.Errorf("Sender = %q, want trimmed", got.Sender)
	}
	if len(n.created) != 1 || n.created[0].ID != got.ID {
		t.Errorf("notifier saw %+v", n.created)
	}
}

func TestCreate_TeamFromCategory(t *testing.T) {
	t.Parallel()

	svc := newService(nil, ticket.ServiceHooks{})
	got, err := svc.Create(context.Background(), ticket.NewTicket{
		Source:   ticket.SourceChatbot,
		Sender:   "x",
		Subject:  "wifi down",
		Category: support.CategoryNetwork,
		Priority: support.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.AssignedTeam != "Network Team" {
		t.Errorf("AssignedTeam = %q, want Network Team", got.AssignedTeam)
	}
}

func TestCreate_NotifyFromIsPerCall(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	svc := newService(n, ticket.ServiceHooks{})
	ctx := context.Background()

	for _, from := range []string{"helpdesk@corp.example", ""} {
		if _, err := svc.Create(ctx, ticket.NewTicket{
			Source: ticket.SourceChatbot, Sender: "s", Subject: "x", NotifyFrom: from,
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		svc.Wait()
	}

	if len(n.froms) != 2 || n.froms[0] != "helpdesk@corp.example" || n.froms[1] != "" {
		t.Errorf("froms = %q, want override only on the first send", n.froms)
	}
}

func TestCreate_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   ticket.NewTicket
	}{
		{"bad source", ticket.NewTicket{Source: "fax", Sender: "s", Subject: "x"}},
		{"no sender", ticket.NewTicket{Source: ticket.SourceChatbot, Sender: " ", Subject: "x"}},
		{"no subject", ticket.NewTicket{Source: ticket.SourceChatbot, Sender: "s"}},
		{"bad priority", ticket.NewTicket{Source: ticket.SourceChatbot, Sender: "s", Subject: "x", Priority: "urgent"}},
		{"bad category", ticket.NewTicket{Source: ticket.SourceChatbot, Sender: "s", Subject: "x", Category: "printers"}},
	}

	svc := newService(nil, ticket.ServiceHooks{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := svc.Create(context.Background(), tt.in); !errors.Is(err, ticket.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	var notified []string
	var mu sync.Mutex
	svc := newService(n, ticket.ServiceHooks{
		OnNotify: func(event string, _ error) {
			mu.Lock()
			notified = append(notified, event)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	tk, err := svc.Create(ctx, ticket.NewTicket{Source: ticket.SourceGLPI, Sender: "s", Subject: "x"})
	if err != nil {
		t.Fatal(err)
	}
	svc.Wait()

	got, err := svc.UpdateStatus(ctx, tk.ID, ticket.StatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	svc.Wait()

	if got.Status != ticket.StatusResolved {
		t.Errorf("Status = %q", got.Status)
	}
	if len(n.updates) != 1 || n.updates[0] != [2]ticket.Status{ticket.StatusOpen, ticket.StatusResolved} {
		t.Errorf("updates = %v", n.updates)
	}
	if len(notified) != 2 || notified[0] != "created" || notified[1] != "updated" {
		t.Errorf("notified = %v", notified)
	}

	if _, err := svc.UpdateStatus(ctx, "missing", ticket.StatusResolved); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.UpdateStatus(ctx, tk.ID, "closed"); !errors.Is(err, ticket.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestNotifyFailureDoesNotFailCreate(t *testing.T) {
	t.Parallel()

	var gotErr error
	n := &recordingNotifier{err: errors.New("webhook down")}
	svc := newService(n, ticket.ServiceHooks{
		OnNotify: func(_ string, err error) { gotErr = err },
	})

	if _, err := svc.Create(context.Background(), ticket.NewTicket{
		Source: ticket.SourceChatbot, Sender: "s", Subject: "x",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.Wait()

	if gotErr == nil {
		t.Error("expected OnNotify to observe the delivery error")
	}
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc := newService(nil, ticket.ServiceHooks{})
	if _, err := svc.List(context.Background(), ticket.Filter{Status: "closed"}); !errors.Is(err, ticket.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
