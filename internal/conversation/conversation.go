// Package conversation keeps short-lived per-sender chat state: the last few
// turns, tickets opened during the session, and the time of the last
// interaction. Expiry is evaluated at read time; nothing sweeps sessions.
package conversation

import (
	"slices"
	"sync"
	"time"

	"github.com/linnemanlabs/deskside/internal/signals"
)

const (
	HistoryCapacity = 10
	DefaultTimeout  = 30 * time.Minute
)

// Turn is one message and the reply given to it.
type Turn struct {
	Message  string         `json:"message"`
	Response string         `json:"response"`
	Intent   signals.Intent `json:"intent"`
	At       time.Time      `json:"at"`
}

// Session is a point-in-time copy of a sender's state.
type Session struct {
	Sender          string    `json:"sender"`
	History         []Turn    `json:"history"`
	Tickets         []string  `json:"tickets"`
	LastInteraction time.Time `json:"last_interaction"`
}

type entry struct {
	mu      sync.Mutex
	history []Turn
	tickets []string
	last    time.Time
}

// Store holds sessions keyed by sender. Each sender has its own lock, so
// different senders never contend.
type Store struct {
	sessions sync.Map // sender -> *entry
	timeout  time.Duration
	now      func() time.Time
}

// Config holds optional Store settings.
type Config struct {
	Timeout time.Duration
	Now     func() time.Time
}

// New returns an empty Store.
func New(cfg Config) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{timeout: cfg.Timeout, now: cfg.Now}
}

func (s *Store) entry(sender string) *entry {
	if e, ok := s.sessions.Load(sender); ok {
		return e.(*entry)
	}
	e, _ := s.sessions.LoadOrStore(sender, &entry{})
	return e.(*entry)
}

// active must be called with e.mu held.
func (s *Store) active(e *entry, now time.Time) bool {
	return !e.last.IsZero() && now.Sub(e.last) < s.timeout
}

// Get returns the sender's session if it is active.
func (s *Store) Get(sender string) (Session, bool) {
	v, ok := s.sessions.Load(sender)
	if !ok {
		return Session{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.active(e, s.now()) {
		return Session{}, false
	}
	return Session{
		Sender:          sender,
		History:         slices.Clone(e.history),
		Tickets:         slices.Clone(e.tickets),
		LastInteraction: e.last,
	}, true
}

// RecordTurn appends a turn, evicting the oldest beyond HistoryCapacity, and
// refreshes the last interaction. An expired session starts over.
func (s *Store) RecordTurn(sender string, t Turn) {
	now := s.now()
	if t.At.IsZero() {
		t.At = now
	}
	e := s.entry(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.active(e, now) {
		e.history, e.tickets = nil, nil
	}
	e.history = append(e.history, t)
	if n := len(e.history); n > HistoryCapacity {
		e.history = slices.Clone(e.history[n-HistoryCapacity:])
	}
	e.last = now
}

// AddTicket records a ticket opened by sender in the current session. A
// non-empty reply replaces the response of the latest turn, the one that
// led to the ticket.
func (s *Store) AddTicket(sender, ticketID, reply string) {
	now := s.now()
	e := s.entry(sender)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.active(e, now) {
		e.history, e.tickets = nil, nil
	}
	e.tickets = append(e.tickets, ticketID)
	if n := len(e.history); n > 0 && reply != "" {
		e.history[n-1].Response = reply
	}
	e.last = now
}
