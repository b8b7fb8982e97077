package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = errors.New("message text is empty")

const suggestionHint = "\n\nHere are some relevant knowledge base articles that might help:"

// TicketCreator persists ticket requests.
type TicketCreator interface {
	Create(ctx context.Context, in ticket.NewTicket) (*ticket.Ticket, error)
}

// ChatResult is what the chat endpoint returns.
type ChatResult struct {
	Response       string            `json:"response"`
	Kind           Kind              `json:"kind"`
	TicketCreated  bool              `json:"ticket_created"`
	TicketID       string            `json:"ticket_id,omitempty"`
	AutoResolved   bool              `json:"auto_resolved"`
	FollowUp       string            `json:"follow_up,omitempty"`
	Escalate       bool              `json:"escalate,omitempty"`
	Classification *Classification   `json:"classification,omitempty"`
	Suggestions    []retrieval.Match `json:"kb_suggestions"`
}

// ServiceConfig holds optional Service settings.
type ServiceConfig struct {
	// NotifyFrom is the sender identity on notifications for tickets the
	// chatbot opens. Empty leaves each notifier's own default.
	NotifyFrom string
	// EmailUpdates is set when ticket notifications reach the employee by
	// email; the ticket reply only promises email updates then.
	EmailUpdates bool
	Logger       log.Logger
}

// Service is the business boundary for chat triage.
type Service struct {
	pipeline     *Pipeline
	tickets      TicketCreator
	notifyFrom   string
	emailUpdates bool
	logger       log.Logger
}

// NewService creates a new triage service.
func NewService(pipeline *Pipeline, tickets TicketCreator, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Service{
		pipeline:     pipeline,
		tickets:      tickets,
		notifyFrom:   cfg.NotifyFrom,
		emailUpdates: cfg.EmailUpdates,
		logger:       cfg.Logger,
	}
}

// Chat triages msg and, when the decision asks for one, opens a ticket on
// the sender's behalf.
func (s *Service) Chat(ctx context.Context, msg support.Message) (*ChatResult, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrEmptyMessage
	}

	d := s.pipeline.Triage(ctx, msg)
	res := &ChatResult{
		Response:       d.Reply,
		Kind:           d.Kind,
		FollowUp:       d.FollowUp,
		Classification: d.Classification,
		Suggestions:    d.Suggestions,
	}

	if d.Kind != KindTicketRequest {
		res.AutoResolved = true
		return res, nil
	}

	req := d.Ticket
	t, err := s.tickets.Create(ctx, ticket.NewTicket{
		Source:      ticket.SourceChatbot,
		Sender:      msg.Sender,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		Team:        req.Team,
		NotifyFrom:  s.notifyFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("open ticket: %w", err)
	}

	reply := fmt.Sprintf(
		"I've created a support ticket for you (ID: %s). Your issue has been categorized as '%s' with '%s' priority and assigned to %s.",
		t.ID, t.Category, t.Priority, t.AssignedTeam,
	)
	if s.emailUpdates {
		reply += " You'll receive updates via email."
	}
	if len(d.Suggestions) > 0 {
		reply += suggestionHint
	}
	s.pipeline.Sessions().AddTicket(msg.Sender, t.ID, reply)

	if req.Escalate {
		s.logger.Warn(ctx, "ticket matches escalation override",
			"ticket_id", t.ID,
			"priority", t.Priority,
		)
	}

	res.Response = reply
	res.TicketCreated = true
	res.TicketID = t.ID
	res.Escalate = req.Escalate
	return res, nil
}

// Classify reports the category, priority and auto-resolve verdict for
// text without recording anything.
func (s *Service) Classify(ctx context.Context, text string) (Classification, error) {
	if strings.TrimSpace(text) == "" {
		return Classification{}, ErrEmptyMessage
	}
	return s.pipeline.Classify(ctx, text), nil
}
