package ticket

import (
	"context"
	"time"
)

// Store is the persistence interface for tickets.
type Store interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, bool, error)
	// UpdateStatus sets the status and returns the updated ticket together
	// with the status it replaced. Unknown ids yield ErrNotFound.
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) (updated *Ticket, old Status, err error)
	// List returns matching tickets, newest first.
	List(ctx context.Context, f Filter) ([]Ticket, error)
}
