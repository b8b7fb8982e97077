package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func mk(id, sender string, status ticket.Status, cat support.Category, age time.Duration) *ticket.Ticket {
	return &ticket.Ticket{
		ID:        id,
		Source:    ticket.SourceChatbot,
		Sender:    sender,
		Subject:   "s-" + id,
		Status:    status,
		Category:  cat,
		CreatedAt: base.Add(-age),
		UpdatedAt: base.Add(-age),
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Create(ctx, mk("a", "Asha (E100)", ticket.StatusOpen, support.CategoryNetwork, 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, mk("a", "dup", ticket.StatusOpen, support.CategoryNetwork, 0)); err == nil {
		t.Error("expected duplicate id error")
	}

	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Sender != "Asha (E100)" {
		t.Errorf("Sender = %q", got.Sender)
	}

	if _, ok, _ := s.Get(ctx, "nope"); ok {
		t.Error("expected ok=false for missing id")
	}
}

func TestStore_UpdateStatus(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, mk("a", "x", ticket.StatusOpen, support.CategoryOther, time.Hour))

	later := base.Add(time.Minute)
	got, old, err := s.UpdateStatus(ctx, "a", ticket.StatusResolved, later)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if old != ticket.StatusOpen || got.Status != ticket.StatusResolved {
		t.Errorf("old=%q new=%q", old, got.Status)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}

	if _, _, err := s.UpdateStatus(ctx, "missing", ticket.StatusResolved, later); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for _, tk := range []*ticket.Ticket{
		mk("1", "Asha Rao (E100)", ticket.StatusOpen, support.CategoryNetwork, 3*time.Hour),
		mk("2", "asha rao (E100)", ticket.StatusResolved, support.CategoryNetwork, 2*time.Hour),
		mk("3", "Vikram (E200)", ticket.StatusOpen, support.CategoryHardware, time.Hour),
		mk("4", "Asha Rao (E100)", ticket.StatusOpen, support.CategoryHardware, 0),
	} {
		if err := s.Create(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		f    ticket.Filter
		want []string
	}{
		{"all newest first", ticket.Filter{}, []string{"4", "3", "2", "1"}},
		{"sender substring", ticket.Filter{Sender: "ASHA"}, []string{"4", "2", "1"}},
		{"status", ticket.Filter{Status: ticket.StatusOpen}, []string{"4", "3", "1"}},
		{"category", ticket.Filter{Category: support.CategoryNetwork}, []string{"2", "1"}},
		{"combined", ticket.Filter{Sender: "e100", Status: ticket.StatusOpen, Category: support.CategoryHardware}, []string{"4"}},
		{"limit", ticket.Filter{Limit: 2}, []string{"4", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.List(ctx, tt.f)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tickets, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("ticket[%d] = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}
