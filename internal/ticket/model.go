// Package ticket persists support tickets and notifies interested parties
// when they are opened or change status.
package ticket

import (
	"errors"
	"time"

	"github.com/linnemanlabs/deskside/internal/support"
)

// Source identifies the channel a ticket came in through.
type Source string

const (
	SourceChatbot Source = "chatbot"
	SourceEmail   Source = "email"
	SourceGLPI    Source = "glpi"
	SourceSolman  Source = "solman"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceChatbot, SourceEmail, SourceGLPI, SourceSolman:
		return true
	}
	return false
}

// Status tracks where a ticket is in its lifecycle.
type Status string

const (
	// StatusOpen means created, not yet picked up
	StatusOpen Status = "open"

	// StatusInProgress means a team is working on it
	StatusInProgress Status = "in_progress"

	// StatusResolved means closed out
	StatusResolved Status = "resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a ticket id does not exist.
	ErrNotFound = errors.New("ticket not found")

	// ErrInvalid wraps validation failures on ticket input.
	ErrInvalid = errors.New("invalid ticket")
)

// Ticket is a persisted support request.
type Ticket struct {
	ID           string           `json:"id"`
	Source       Source           `json:"source"`
	Sender       string           `json:"sender"`
	Subject      string           `json:"subject"`
	Description  string           `json:"description"`
	Priority     support.Priority `json:"priority"`
	Category     support.Category `json:"category"`
	AssignedTeam string           `json:"assigned_team"`
	Status       Status           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Filter narrows List results. Zero fields do not filter.
type Filter struct {
	// Sender matches case-insensitively anywhere in the sender.
	Sender   string
	Status   Status
	Category support.Category
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// EffectiveLimit clamps Limit into [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
