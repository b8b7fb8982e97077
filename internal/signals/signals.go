// Package signals extracts keyword and pattern signals from support text:
// priority, canned auto-resolve responses, conversational intent and the
// presence of IT vocabulary. Every function is pure and total.
package signals

import (
	"math"
	"regexp"
	"strings"

	"github.com/linnemanlabs/deskside/internal/support"
)

// Intent is the conversational purpose of a message.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentFarewell         Intent = "farewell"
	IntentQuestionAboutBot Intent = "question_about_bot"
	IntentStatusInquiry    Intent = "status_inquiry"
	IntentPasswordIssue    Intent = "password_issue"
	IntentNetworkIssue     Intent = "network_issue"
	IntentHardwareIssue    Intent = "hardware_issue"
	IntentSoftwareIssue    Intent = "software_issue"
	IntentEmailIssue       Intent = "email_issue"
	IntentAccessIssue      Intent = "access_issue"
	IntentITSupport        Intent = "it_support"
)

// ITRelated reports whether the intent describes a technical problem rather
// than small talk.
func (i Intent) ITRelated() bool {
	switch i {
	case IntentGreeting, IntentFarewell, IntentQuestionAboutBot, IntentStatusInquiry:
		return false
	}
	return true
}

const (
	matchedIntentConfidence = 0.9
	shortGreetingConfidence = 0.7
	defaultIntentConfidence = 0.8
	shortMessageThreshold   = 10
)

const (
	highBaseConfidence    = 0.70
	highStepConfidence    = 0.10
	highMaxConfidence     = 0.95
	mediumBaseConfidence  = 0.60
	mediumStepConfidence  = 0.05
	mediumMaxConfidence   = 0.85
	lowPriorityConfidence = 0.60
)

// PrioritySignal is the keyword-derived urgency of a message.
type PrioritySignal struct {
	Priority      support.Priority `json:"priority"`
	Confidence    float64          `json:"confidence"`
	HighMatches   int              `json:"high_matches"`
	MediumMatches int              `json:"medium_matches"`
}

// Pattern is a named canned response triggered by any of its keywords.
type Pattern struct {
	Name     string
	Keywords []string
	Response string
}

// AutoResolveSignal names the pattern that matched and its canned response.
type AutoResolveSignal struct {
	Pattern  string `json:"pattern"`
	Response string `json:"response"`
}

// IntentSignal is the outcome of intent detection.
type IntentSignal struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	ITRelated  bool    `json:"it_related"`
}

type intentRule struct {
	intent Intent
	re     *regexp.Regexp
}

// Extractor holds the keyword tables and compiled intent patterns. It is
// immutable after construction and safe for concurrent use.
type Extractor struct {
	highKeywords   []string
	mediumKeywords []string
	patterns       []Pattern
	intents        []intentRule
	itKeywords     []string
}

// NewExtractor returns an Extractor loaded with the built-in tables.
func NewExtractor() *Extractor {
	intents := make([]intentRule, 0, len(intentPatterns))
	for _, p := range intentPatterns {
		intents = append(intents, intentRule{intent: p.intent, re: regexp.MustCompile(p.expr)})
	}
	return &Extractor{
		highKeywords:   highPriorityKeywords,
		mediumKeywords: mediumPriorityKeywords,
		patterns:       autoResolvePatterns,
		intents:        intents,
		itKeywords:     itKeywords,
	}
}

// Normalize lower-cases and trims text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Priority scores text against the high and medium keyword sets. Any high
// match wins; confidence grows with the match count and saturates.
func (e *Extractor) Priority(text string) PrioritySignal {
	norm := Normalize(text)
	high := countMatches(norm, e.highKeywords)
	medium := countMatches(norm, e.mediumKeywords)

	switch {
	case high > 0:
		return PrioritySignal{
			Priority:      support.PriorityHigh,
			Confidence:    math.Min(highBaseConfidence+highStepConfidence*float64(high), highMaxConfidence),
			HighMatches:   high,
			MediumMatches: medium,
		}
	case medium > 0:
		return PrioritySignal{
			Priority:      support.PriorityMedium,
			Confidence:    math.Min(mediumBaseConfidence+mediumStepConfidence*float64(medium), mediumMaxConfidence),
			MediumMatches: medium,
		}
	default:
		return PrioritySignal{Priority: support.PriorityLow, Confidence: lowPriorityConfidence}
	}
}

// AutoResolve returns the first pattern, in declared order, with a keyword
// occurring anywhere in text.
func (e *Extractor) AutoResolve(text string) (AutoResolveSignal, bool) {
	norm := Normalize(text)
	for _, p := range e.patterns {
		for _, kw := range p.Keywords {
			if strings.Contains(norm, kw) {
				return AutoResolveSignal{Pattern: p.Name, Response: p.Response}, true
			}
		}
	}
	return AutoResolveSignal{}, false
}

// Intent evaluates the ordered intent patterns; the first match wins.
// Unmatched very short text is treated as a greeting, anything else as a
// generic IT support request.
func (e *Extractor) Intent(text string) IntentSignal {
	norm := Normalize(text)
	for _, r := range e.intents {
		if r.re.MatchString(norm) {
			return IntentSignal{
				Intent:     r.intent,
				Confidence: matchedIntentConfidence,
				ITRelated:  r.intent.ITRelated(),
			}
		}
	}
	if len(norm) < shortMessageThreshold {
		return IntentSignal{Intent: IntentGreeting, Confidence: shortGreetingConfidence}
	}
	return IntentSignal{Intent: IntentITSupport, Confidence: defaultIntentConfidence, ITRelated: true}
}

// HasITKeyword reports whether text mentions any IT vocabulary.
func (e *Extractor) HasITKeyword(text string) bool {
	return countMatches(Normalize(text), e.itKeywords) > 0
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
