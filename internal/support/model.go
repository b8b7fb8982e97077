// Package support holds the domain vocabulary shared by every triage
// component: the closed category set, priorities, and inbound messages.
package support

import (
	"strings"
	"time"
)

// Category is the closed set of problem kinds a message can be filed under.
type Category string

const (
	CategoryNetwork  Category = "network"
	CategoryAccess   Category = "access"
	CategoryHardware Category = "hardware"
	CategorySoftware Category = "software"
	CategoryOther    Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryNetwork,
	CategoryAccess,
	CategoryHardware,
	CategorySoftware,
	CategoryOther,
}

// Valid reports whether c is one of the closed category set.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Priority is the urgency of a support request.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is high, medium or low.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Message is a single inbound support utterance. It is never mutated after
// it is handed to the pipeline.
type Message struct {
	Text       string    `json:"text"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewMessage builds a Message stamped with the given arrival time.
func NewMessage(sender, text string, at time.Time) Message {
	return Message{
		Text:       text,
		Sender:     strings.TrimSpace(sender),
		ReceivedAt: at,
	}
}
