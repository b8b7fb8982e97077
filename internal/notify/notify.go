// Package notify fans ticket events out to every configured channel.
package notify

import (
	"context"
	"errors"

	"github.com/linnemanlabs/deskside/internal/ticket"
)

// Multi delivers each event to every notifier in order. All notifiers are
// attempted; their errors are joined.
type Multi []ticket.Notifier

// New drops nil entries and returns the remaining notifiers as one.
func New(ns ...ticket.Notifier) Multi {
	out := make(Multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// TicketCreated implements ticket.Notifier.
func (m Multi) TicketCreated(ctx context.Context, t ticket.Ticket, opts ticket.NotifyOptions) error {
	var errs []error
	for _, n := range m {
		if err := n.TicketCreated(ctx, t, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TicketUpdated implements ticket.Notifier.
func (m Multi) TicketUpdated(ctx context.Context, t ticket.Ticket, oldStatus, newStatus ticket.Status) error {
	var errs []error
	for _, n := range m {
		if err := n.TicketUpdated(ctx, t, oldStatus, newStatus); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
