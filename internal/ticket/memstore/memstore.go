// Package memstore provides an in-memory implementation of ticket.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/deskside/internal/ticket"
)

// Store holds tickets in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	tickets map[string]*ticket.Ticket
}

// New initializes an empty Store.
func New() *Store {
	return &Store{tickets: make(map[string]*ticket.Ticket)}
}

// Create stores a copy of t. Duplicate ids are rejected.
func (s *Store) Create(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

// Get returns a copy of the ticket.
func (s *Store) Get(_ context.Context, id string) (*ticket.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	cp := *t
	return &cp, true, nil
}

// UpdateStatus sets the status and bumps UpdatedAt.
func (s *Store) UpdateStatus(_ context.Context, id string, status ticket.Status, at time.Time) (*ticket.Ticket, ticket.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, "", fmt.Errorf("ticket %s: %w", id, ticket.ErrNotFound)
	}
	old := t.Status
	t.Status = status
	t.UpdatedAt = at
	cp := *t
	return &cp, old, nil
}

// List returns copies of matching tickets, newest first.
func (s *Store) List(_ context.Context, f ticket.Filter) ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sender := strings.ToLower(f.Sender)
	var out []ticket.Ticket
	for _, t := range s.tickets {
		if sender != "" && !strings.Contains(strings.ToLower(t.Sender), sender) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
