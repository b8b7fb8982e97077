// Package rules holds the declarative triage tables (auto-resolve rules,
// escalation policy, team routing and SLA targets) and the pure functions
// evaluated over them.
package rules

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/deskside/internal/signals"
	"github.com/linnemanlabs/deskside/internal/support"
)

// AutoResolveRule issues a canned resolution instead of a ticket when any of
// its keywords occurs in the text. An empty Category matches every category.
type AutoResolveRule struct {
	Name       string           `yaml:"name" json:"name"`
	Keywords   []string         `yaml:"keywords" json:"keywords"`
	Category   support.Category `yaml:"category,omitempty" json:"category,omitempty"`
	Resolution string           `yaml:"resolution" json:"resolution"`
	ArticleID  string           `yaml:"article_id,omitempty" json:"article_id,omitempty"`
}

// EscalationPolicy escalates when an override keyword is present or once a
// ticket has been open for at least its priority's threshold.
type EscalationPolicy struct {
	ThresholdHours   map[support.Priority]float64 `yaml:"threshold_hours"`
	DefaultHours     float64                      `yaml:"default_hours"`
	OverrideKeywords []string                     `yaml:"override_keywords"`
}

// TeamRule routes a category to a team. Keywords feed SuggestCategory.
type TeamRule struct {
	Category support.Category `yaml:"category"`
	Team     string           `yaml:"team"`
	Keywords []string         `yaml:"keywords"`
}

// SLA is the response and resolution target for a priority.
type SLA struct {
	ResponseHours   int    `yaml:"response_hours" json:"response_hours"`
	ResolutionHours int    `yaml:"resolution_hours" json:"resolution_hours"`
	Description     string `yaml:"description" json:"description"`
}

// Tables is the full rule set. Slice order is evaluation order.
type Tables struct {
	AutoResolve []AutoResolveRule        `yaml:"auto_resolve"`
	Escalation  EscalationPolicy         `yaml:"escalation"`
	Teams       []TeamRule               `yaml:"teams"`
	DefaultTeam string                   `yaml:"default_team"`
	SLA         map[support.Priority]SLA `yaml:"sla"`
}

// Validate checks the tables for entries that could never be evaluated
// sensibly.
func (t Tables) Validate() error {
	for i, r := range t.AutoResolve {
		if r.Name == "" {
			return fmt.Errorf("auto_resolve[%d]: name is required", i)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("auto_resolve %q: at least one keyword is required", r.Name)
		}
		if r.Category != "" && !r.Category.Valid() {
			return fmt.Errorf("auto_resolve %q: unknown category %q", r.Name, r.Category)
		}
	}
	for i, tr := range t.Teams {
		if !tr.Category.Valid() {
			return fmt.Errorf("teams[%d]: unknown category %q", i, tr.Category)
		}
		if tr.Team == "" {
			return fmt.Errorf("teams[%d]: team is required", i)
		}
	}
	if t.DefaultTeam == "" {
		return fmt.Errorf("default_team is required")
	}
	if t.Escalation.DefaultHours <= 0 {
		return fmt.Errorf("escalation.default_hours must be > 0")
	}
	if _, ok := t.SLA[support.PriorityMedium]; !ok {
		return fmt.Errorf("sla: medium row is required")
	}
	return nil
}

// Engine evaluates Tables. It never mutates them and is safe for concurrent
// use.
type Engine struct {
	t Tables
}

// Default returns an Engine over the built-in tables.
func Default() *Engine {
	return &Engine{t: DefaultTables()}
}

// New returns an Engine over t after validating it. Keywords are lowered so
// that matching against normalized text is case-insensitive.
func New(t Tables) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	t.AutoResolve = append([]AutoResolveRule(nil), t.AutoResolve...)
	for i := range t.AutoResolve {
		t.AutoResolve[i].Keywords = lowerAll(t.AutoResolve[i].Keywords)
	}
	t.Teams = append([]TeamRule(nil), t.Teams...)
	for i := range t.Teams {
		t.Teams[i].Keywords = lowerAll(t.Teams[i].Keywords)
	}
	t.Escalation.OverrideKeywords = lowerAll(t.Escalation.OverrideKeywords)
	return &Engine{t: t}, nil
}

// CheckAutoResolve returns the first rule, in declared order, whose keyword
// occurs in text and whose category requirement (if any) equals category.
func (e *Engine) CheckAutoResolve(text string, category support.Category) (AutoResolveRule, bool) {
	norm := signals.Normalize(text)
	for _, r := range e.t.AutoResolve {
		if r.Category != "" && r.Category != category {
			continue
		}
		if containsAny(norm, r.Keywords) {
			return r, true
		}
	}
	return AutoResolveRule{}, false
}

// ShouldEscalate reports whether a ticket with the given text and priority,
// open for hoursOpen hours, should be escalated. Override keywords escalate
// unconditionally; otherwise the threshold is inclusive.
func (e *Engine) ShouldEscalate(text string, priority support.Priority, hoursOpen float64) bool {
	if containsAny(signals.Normalize(text), e.t.Escalation.OverrideKeywords) {
		return true
	}
	threshold, ok := e.t.Escalation.ThresholdHours[priority]
	if !ok {
		threshold = e.t.Escalation.DefaultHours
	}
	return hoursOpen >= threshold
}

// AssignTeam returns the team owning category, or the default team.
func (e *Engine) AssignTeam(category support.Category) string {
	for _, tr := range e.t.Teams {
		if tr.Category == category {
			return tr.Team
		}
	}
	return e.t.DefaultTeam
}

// SuggestCategory scores each team category by the number of its keywords
// found in text. The highest nonzero score wins, ties go to the category
// declared first, and a text matching nothing is "other".
func (e *Engine) SuggestCategory(text string) support.Category {
	norm := signals.Normalize(text)
	best, bestScore := support.CategoryOther, 0
	for _, tr := range e.t.Teams {
		score := 0
		for _, kw := range tr.Keywords {
			if strings.Contains(norm, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = tr.Category, score
		}
	}
	return best
}

// ApplySLA returns the SLA for priority, falling back to the medium row.
func (e *Engine) ApplySLA(priority support.Priority) SLA {
	if s, ok := e.t.SLA[priority]; ok {
		return s
	}
	return e.t.SLA[support.PriorityMedium]
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
