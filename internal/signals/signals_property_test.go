package signals

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/linnemanlabs/deskside/internal/support"
)

var vocabulary = []string{
	"printer", "laptop", "the", "my", "is", "please", "today",
	"urgent", "critical", "down", "broken", "asap",
	"need", "help", "issue", "soon", "problem",
}

func drawText(t *rapid.T) string {
	n := rapid.IntRange(0, 12).Draw(t, "words")
	words := make([]string, n)
	for i := range words {
		words[i] = rapid.SampledFrom(vocabulary).Draw(t, fmt.Sprintf("word_%d", i))
	}
	return strings.Join(words, " ")
}

func TestPriorityConfidenceBounds_Property(t *testing.T) {
	e := NewExtractor()
	rapid.Check(t, func(t *rapid.T) {
		text := drawText(t)
		got := e.Priority(text)

		switch got.Priority {
		case support.PriorityHigh:
			if got.Confidence < 0.80-1e-9 || got.Confidence > 0.95 {
				t.Fatalf("high confidence %v out of [0.80, 0.95] for %q", got.Confidence, text)
			}
		case support.PriorityMedium:
			if got.Confidence < 0.65-1e-9 || got.Confidence > 0.85 {
				t.Fatalf("medium confidence %v out of [0.65, 0.85] for %q", got.Confidence, text)
			}
		case support.PriorityLow:
			if !approx(got.Confidence, 0.60) {
				t.Fatalf("low confidence = %v, want 0.60 for %q", got.Confidence, text)
			}
		default:
			t.Fatalf("unexpected priority %q", got.Priority)
		}
	})
}

func TestPriorityHighKeywordDominates_Property(t *testing.T) {
	e := NewExtractor()
	rapid.Check(t, func(t *rapid.T) {
		text := drawText(t)
		kw := rapid.SampledFrom(highPriorityKeywords).Draw(t, "high")
		got := e.Priority(text + " " + kw)
		if got.Priority != support.PriorityHigh {
			t.Fatalf("Priority(%q) = %q, want high", text+" "+kw, got.Priority)
		}
	})
}

func TestPriorityConfidenceMonotonic_Property(t *testing.T) {
	e := NewExtractor()
	rapid.Check(t, func(t *rapid.T) {
		text := drawText(t)
		kw := rapid.SampledFrom(highPriorityKeywords).Draw(t, "high")
		before := e.Priority(text)
		after := e.Priority(text + " " + kw)
		if before.Priority == support.PriorityHigh && after.Confidence < before.Confidence {
			t.Fatalf("confidence dropped from %v to %v after adding %q", before.Confidence, after.Confidence, kw)
		}
	})
}

func TestIntentConfidenceDomain_Property(t *testing.T) {
	e := NewExtractor()
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-z ]{0,40}`).Draw(t, "text")
		got := e.Intent(text)
		switch got.Confidence {
		case matchedIntentConfidence, shortGreetingConfidence, defaultIntentConfidence:
		default:
			t.Fatalf("Intent(%q) confidence = %v", text, got.Confidence)
		}
		if got.ITRelated != got.Intent.ITRelated() {
			t.Fatalf("ITRelated = %v disagrees with intent %q", got.ITRelated, got.Intent)
		}
	})
}
