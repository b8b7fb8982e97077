// Package category maps free text onto the closed support category set with
// a zero-shot classifier. Classifier faults never reach the caller: they
// surface as a degraded Outcome.
package category

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/support"
)

// Labels are the hypotheses sent to the zero-shot classifier, in the order
// they are presented.
var Labels = []string{
	"network and connectivity issues",
	"access and authentication problems",
	"hardware and equipment issues",
	"software and application issues",
	"other IT support",
}

var labelCategory = map[string]support.Category{
	"network and connectivity issues":    support.CategoryNetwork,
	"access and authentication problems": support.CategoryAccess,
	"hardware and equipment issues":      support.CategoryHardware,
	"software and application issues":    support.CategorySoftware,
	"other IT support":                   support.CategoryOther,
}

const (
	fallbackConfidence = 0.5
	DefaultTimeout     = 10 * time.Second
)

// Scorer scores text against candidate labels. Returned scores are keyed by
// label and expected in [0,1].
type Scorer interface {
	Score(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// Outcome is the result of one classification. When Degraded is set the
// category is "other" with confidence 0.5 and Reason says why.
type Outcome struct {
	Category   support.Category `json:"category"`
	Confidence float64          `json:"confidence"`
	Degraded   bool             `json:"degraded,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	// OnScore fires after every scorer call with its duration in seconds.
	OnScore func(duration float64, err error)
	// OnDegraded fires whenever Classify falls back.
	OnDegraded func(reason string)
}

// Model wraps a Scorer with the label mapping, a call timeout and the
// degraded fallback.
type Model struct {
	scorer  Scorer
	timeout time.Duration
	logger  log.Logger
	hooks   Hooks
}

// New returns a Model. A nil scorer is allowed and makes every call degrade.
func New(scorer Scorer, timeout time.Duration, logger log.Logger, hooks Hooks) *Model {
	if logger == nil {
		logger = log.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Model{
		scorer:  scorer,
		timeout: timeout,
		logger:  logger,
		hooks:   hooks,
	}
}

var errNoScorer = errors.New("no classifier configured")

// Classify returns the category whose label scored highest. It always
// returns a usable Outcome.
func (m *Model) Classify(ctx context.Context, text string) Outcome {
	if m.scorer == nil {
		return m.degrade(ctx, errNoScorer)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	scores, err := m.scorer.Score(ctx, text, Labels)
	if m.hooks.OnScore != nil {
		m.hooks.OnScore(time.Since(start).Seconds(), err)
	}
	if err != nil {
		return m.degrade(ctx, err)
	}

	best, bestScore, found := "", -1.0, false
	for _, label := range Labels {
		s, ok := scores[label]
		if !ok {
			continue
		}
		if s > bestScore {
			best, bestScore, found = label, s, true
		}
	}
	if !found {
		return m.degrade(ctx, fmt.Errorf("classifier returned no known labels (%d scores)", len(scores)))
	}
	if bestScore < 0 || bestScore > 1 {
		return m.degrade(ctx, fmt.Errorf("classifier score %v out of range for %q", bestScore, best))
	}

	return Outcome{Category: labelCategory[best], Confidence: bestScore}
}

func (m *Model) degrade(ctx context.Context, err error) Outcome {
	m.logger.Warn(ctx, "category model degraded",
		"fallback", "model_fallback",
		"reason", err.Error(),
	)
	if m.hooks.OnDegraded != nil {
		m.hooks.OnDegraded(err.Error())
	}
	return Outcome{
		Category:   support.CategoryOther,
		Confidence: fallbackConfidence,
		Degraded:   true,
		Reason:     err.Error(),
	}
}
