package triage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/deskside/internal/category"
	"github.com/linnemanlabs/deskside/internal/conversation"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/rules"
	"github.com/linnemanlabs/deskside/internal/signals"
	"github.com/linnemanlabs/deskside/internal/support"
)

// Kind discriminates a Decision.
type Kind string

const (
	KindConversational Kind = "conversational"
	KindAutoResolved   Kind = "auto_resolved"
	KindTicketRequest  Kind = "ticket_request"
)

const (
	// shortMessageLen and lowConfidence bound the noise guard: messages this
	// short with a weaker category score and no IT keyword are conversational.
	shortMessageLen = 20
	lowConfidence   = 0.30

	subjectLen     = 100
	historyContext = 3

	guardReply = "Hello! I'm your IT support assistant. Please describe any technical issues you're experiencing, and I'll help you find a solution or create a support ticket."
	followUp   = "Did this solve your problem? If not, just tell me and I'll open a ticket for you."
)

// Classifier scores text into a category. It never fails; degraded
// outcomes are values.
type Classifier interface {
	Classify(ctx context.Context, text string) category.Outcome
}

// Searcher returns knowledge suggestions for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]retrieval.Match, error)
}

// Classification is the per-message verdict. It is built once and never
// modified.
type Classification struct {
	Category      support.Category `json:"category"`
	Priority      support.Priority `json:"priority"`
	Confidence    float64          `json:"confidence"`
	AutoResolve   bool             `json:"auto_resolve"`
	Resolution    string           `json:"resolution_message,omitempty"`
	ModelDegraded bool             `json:"model_degraded,omitempty"`
}

// TicketRequest asks the caller to persist a ticket.
type TicketRequest struct {
	Category    support.Category `json:"category"`
	Priority    support.Priority `json:"priority"`
	Team        string           `json:"team"`
	SLA         rules.SLA        `json:"sla"`
	Subject     string           `json:"subject"`
	Description string           `json:"description"`
	Escalate    bool             `json:"escalate"`
}

// Decision is the outcome of Triage. Classification and Suggestions are
// absent on the conversational path; Ticket is set only for
// KindTicketRequest.
type Decision struct {
	Kind           Kind              `json:"kind"`
	Reply          string            `json:"reply"`
	Intent         signals.Intent    `json:"intent"`
	Classification *Classification   `json:"classification,omitempty"`
	Suggestions    []retrieval.Match `json:"suggestions"`
	FollowUp       string            `json:"follow_up,omitempty"`
	ArticleID      string            `json:"article_id,omitempty"`
	Ticket         *TicketRequest    `json:"ticket,omitempty"`
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnDecision func(kind Kind, duration float64)
	OnGuard    func()
}

// PipelineConfig holds optional Pipeline settings.
type PipelineConfig struct {
	SearchLimit int
	Logger      log.Logger
	Tracer      trace.Tracer
	Hooks       Hooks
}

// Pipeline composes the triage components. Every dependency is injected;
// the pipeline keeps no state of its own beyond the sessions store.
type Pipeline struct {
	signals  *signals.Extractor
	model    Classifier
	rules    *rules.Engine
	index    Searcher
	sessions *conversation.Store

	limit  int
	logger log.Logger
	tracer trace.Tracer
	hooks  Hooks
}

// NewPipeline wires the components. It panics if a required dependency
// is nil.
func NewPipeline(
	extractor *signals.Extractor,
	model Classifier,
	engine *rules.Engine,
	index Searcher,
	sessions *conversation.Store,
	cfg PipelineConfig,
) *Pipeline {
	if extractor == nil || model == nil || engine == nil || index == nil || sessions == nil {
		panic(xerrors.New("triage: NewPipeline requires extractor, model, rules, index and sessions"))
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = retrieval.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/linnemanlabs/deskside/internal/triage")
	}
	return &Pipeline{
		signals:  extractor,
		model:    model,
		rules:    engine,
		index:    index,
		sessions: sessions,
		limit:    cfg.SearchLimit,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		hooks:    cfg.Hooks,
	}
}

// Sessions exposes the conversation store the pipeline records into.
func (p *Pipeline) Sessions() *conversation.Store { return p.sessions }

// Triage produces a decision for msg and records the turn in the sender's
// session on every branch.
func (p *Pipeline) Triage(ctx context.Context, msg support.Message) Decision {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "triage.Pipeline.Triage")
	defer span.End()

	L := p.logger.With("sender", msg.Sender)
	norm := signals.Normalize(msg.Text)
	intent := p.signals.Intent(norm)
	span.SetAttributes(attribute.String("triage.intent", string(intent.Intent)))

	var d Decision
	if !intent.ITRelated {
		d = Decision{
			Kind:   KindConversational,
			Reply:  p.sessions.GenerateContextualResponse(msg.Sender, intent.Intent),
			Intent: intent.Intent,
		}
	} else {
		d = p.triageIT(ctx, L, msg, norm, intent)
	}
	if d.Suggestions == nil {
		d.Suggestions = []retrieval.Match{}
	}

	p.sessions.RecordTurn(msg.Sender, conversation.Turn{
		Message:  msg.Text,
		Response: d.Reply,
		Intent:   d.Intent,
		At:       msg.ReceivedAt,
	})

	span.SetAttributes(attribute.String("triage.kind", string(d.Kind)))
	if c := d.Classification; c != nil {
		span.SetAttributes(
			attribute.String("triage.category", string(c.Category)),
			attribute.String("triage.priority", string(c.Priority)),
			attribute.Bool("triage.model_degraded", c.ModelDegraded),
		)
	}

	elapsed := time.Since(start).Seconds()
	L.Info(ctx, "triage decision",
		"kind", d.Kind,
		"intent", d.Intent,
		"suggestions", len(d.Suggestions),
		"duration", elapsed,
	)
	if p.hooks.OnDecision != nil {
		p.hooks.OnDecision(d.Kind, elapsed)
	}
	return d
}

func (p *Pipeline) triageIT(ctx context.Context, L log.Logger, msg support.Message, norm string, intent signals.IntentSignal) Decision {
	// read before this turn is recorded
	sess, hasSession := p.sessions.Get(msg.Sender)

	var (
		g           errgroup.Group
		outcome     category.Outcome
		suggestions []retrieval.Match
	)
	g.Go(func() error {
		ctx, span := p.tracer.Start(ctx, "triage.classify")
		defer span.End()
		outcome = p.model.Classify(ctx, msg.Text)
		if outcome.Degraded {
			span.SetAttributes(attribute.String("triage.fallback", outcome.Reason))
		}
		return nil
	})
	g.Go(func() error {
		ctx, span := p.tracer.Start(ctx, "triage.search")
		defer span.End()
		matches, err := p.index.Search(ctx, msg.Text, p.limit)
		if err != nil {
			// suggestions are optional
			span.RecordError(err)
			L.Warn(ctx, "knowledge search failed", "err", err)
			return nil
		}
		suggestions = matches
		return nil
	})

	prio := p.signals.Priority(norm)
	autoSignal, autoHit := p.signals.AutoResolve(norm)

	_ = g.Wait()

	if utf8.RuneCountInString(norm) <= shortMessageLen && outcome.Confidence < lowConfidence && !p.signals.HasITKeyword(norm) {
		L.Info(ctx, "short low-confidence message treated as conversational",
			"category_confidence", outcome.Confidence)
		if p.hooks.OnGuard != nil {
			p.hooks.OnGuard()
		}
		return Decision{Kind: KindConversational, Reply: guardReply, Intent: intent.Intent}
	}

	c := &Classification{
		Category:      outcome.Category,
		Priority:      prio.Priority,
		Confidence:    round2((outcome.Confidence + prio.Confidence) / 2),
		AutoResolve:   autoHit,
		Resolution:    autoSignal.Response,
		ModelDegraded: outcome.Degraded,
	}

	if rule, ok := p.rules.CheckAutoResolve(norm, c.Category); ok {
		return Decision{
			Kind:           KindAutoResolved,
			Reply:          rule.Resolution,
			Intent:         intent.Intent,
			Classification: c,
			Suggestions:    suggestions,
			FollowUp:       followUp,
			ArticleID:      rule.ArticleID,
		}
	}

	team := p.rules.AssignTeam(c.Category)
	req := &TicketRequest{
		Category:    c.Category,
		Priority:    c.Priority,
		Team:        team,
		SLA:         p.rules.ApplySLA(c.Priority),
		Subject:     subject(msg.Text),
		Description: describe(msg.Text, sess.History, hasSession),
		Escalate:    p.rules.ShouldEscalate(norm, c.Priority, 0),
	}
	return Decision{
		Kind:           KindTicketRequest,
		Reply:          fmt.Sprintf("This looks like a %s issue with %s priority. I'll route it to %s.", c.Category, c.Priority, team),
		Intent:         intent.Intent,
		Classification: c,
		Suggestions:    suggestions,
		Ticket:         req,
	}
}

// Classify runs the category model and the keyword signals without touching
// any session.
func (p *Pipeline) Classify(ctx context.Context, text string) Classification {
	ctx, span := p.tracer.Start(ctx, "triage.Pipeline.Classify")
	defer span.End()

	norm := signals.Normalize(text)
	outcome := p.model.Classify(ctx, text)
	prio := p.signals.Priority(norm)
	auto, hit := p.signals.AutoResolve(norm)
	return Classification{
		Category:      outcome.Category,
		Priority:      prio.Priority,
		Confidence:    round2((outcome.Confidence + prio.Confidence) / 2),
		AutoResolve:   hit,
		Resolution:    auto.Response,
		ModelDegraded: outcome.Degraded,
	}
}

func subject(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= subjectLen {
		return text
	}
	return string([]rune(text)[:subjectLen])
}

// describe appends the sender's most recent IT-related messages so the
// ticket carries the context the user already gave.
func describe(text string, history []conversation.Turn, hasSession bool) string {
	text = strings.TrimSpace(text)
	if !hasSession {
		return text
	}
	var prior []string
	for i := len(history) - 1; i >= 0 && len(prior) < historyContext; i-- {
		if history[i].Intent.ITRelated() {
			prior = append(prior, history[i].Message)
		}
	}
	if len(prior) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nEarlier in this conversation:")
	for i := len(prior) - 1; i >= 0; i-- {
		b.WriteString("\n- ")
		b.WriteString(prior[i])
	}
	return b.String()
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
