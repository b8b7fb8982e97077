package ticket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/support"
)

// TeamAssigner routes a category to the team that owns it.
type TeamAssigner interface {
	AssignTeam(category support.Category) string
}

// NotifyOptions carries per-send overrides. They are passed with each call
// and never stored on the notifier.
type NotifyOptions struct {
	// From overrides the sender identity for this one notification.
	From string
}

// Notifier is told about ticket lifecycle events. Delivery is best-effort.
type Notifier interface {
	TicketCreated(ctx context.Context, t Ticket, opts NotifyOptions) error
	TicketUpdated(ctx context.Context, t Ticket, oldStatus, newStatus Status) error
}

// NewTicket is the input to Service.Create. Empty Priority, Category and
// Team are filled with defaults. NotifyFrom is set by trusted callers only
// and never decoded from requests.
type NewTicket struct {
	Source      Source           `json:"source"`
	Sender      string           `json:"sender"`
	Subject     string           `json:"subject"`
	Description string           `json:"description"`
	Priority    support.Priority `json:"priority,omitempty"`
	Category    support.Category `json:"category,omitempty"`
	Team        string           `json:"team,omitempty"`
	NotifyFrom  string           `json:"-"`
}

// ServiceHooks are optional callbacks for instrumentation.
type ServiceHooks struct {
	OnCreated func(t Ticket)
	OnNotify  func(event string, err error)
}

// Service is the business boundary for ticket operations.
type Service struct {
	store    Store
	teams    TeamAssigner
	notifier Notifier
	logger   log.Logger
	hooks    ServiceHooks
	now      func() time.Time

	inflight sync.WaitGroup
}

// NewService creates a ticket service. notifier may be nil.
func NewService(store Store, teams TeamAssigner, notifier Notifier, logger log.Logger, hooks ServiceHooks) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		teams:    teams,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Create validates and stores a new open ticket, then notifies in the
// background.
func (s *Service) Create(ctx context.Context, in NewTicket) (*Ticket, error) {
	if !in.Source.Valid() {
		return nil, invalid("unknown source %q", in.Source)
	}
	if strings.TrimSpace(in.Sender) == "" {
		return nil, invalid("sender is required")
	}
	if strings.TrimSpace(in.Subject) == "" {
		return nil, invalid("subject is required")
	}
	if in.Priority == "" {
		in.Priority = support.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalid("unknown priority %q", in.Priority)
	}
	if in.Category == "" {
		in.Category = support.CategoryOther
	}
	if !in.Category.Valid() {
		return nil, invalid("unknown category %q", in.Category)
	}
	if in.Team == "" {
		in.Team = s.teams.AssignTeam(in.Category)
	}

	now := s.now()
	t := &Ticket{
		ID:           ulid.Make().String(),
		Source:       in.Source,
		Sender:       strings.TrimSpace(in.Sender),
		Subject:      in.Subject,
		Description:  in.Description,
		Priority:     in.Priority,
		Category:     in.Category,
		AssignedTeam: in.Team,
		Status:       StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.logger.Info(ctx, "ticket created",
		"ticket_id", t.ID,
		"source", t.Source,
		"category", t.Category,
		"priority", t.Priority,
		"team", t.AssignedTeam,
	)
	if s.hooks.OnCreated != nil {
		s.hooks.OnCreated(*t)
	}

	snapshot := *t
	s.notify(context.WithoutCancel(ctx), "created", func(ctx context.Context) error {
		return s.notifier.TicketCreated(ctx, snapshot, NotifyOptions{From: in.NotifyFrom})
	}, t.ID)

	return t, nil
}

// Get retrieves a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns tickets matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Ticket, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("unknown status %q", f.Status)
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, invalid("unknown category %q", f.Category)
	}
	f.Limit = f.EffectiveLimit()
	return s.store.List(ctx, f)
}

// UpdateStatus moves a ticket to status and notifies in the background.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Ticket, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}

	t, old, err := s.store.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "ticket status updated",
		"ticket_id", t.ID,
		"old_status", old,
		"new_status", status,
	)

	snapshot := *t
	s.notify(context.WithoutCancel(ctx), "updated", func(ctx context.Context) error {
		return s.notifier.TicketUpdated(ctx, snapshot, old, status)
	}, t.ID)

	return t, nil
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) notify(ctx context.Context, event string, send func(context.Context) error, id string) {
	if s.notifier == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := send(ctx)
		if err != nil {
			s.logger.Error(ctx, err, "ticket notification failed", "ticket_id", id, "event", event)
		}
		if s.hooks.OnNotify != nil {
			s.hooks.OnNotify(event, err)
		}
	}()
}
