package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/linnemanlabs/deskside/internal/category"
	"github.com/linnemanlabs/deskside/internal/conversation"
	"github.com/linnemanlabs/deskside/internal/knowledge"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/rules"
	"github.com/linnemanlabs/deskside/internal/signals"
	"github.com/linnemanlabs/deskside/internal/support"
)

func TestMain(m *testing.M) {
	// opencensus (via the genai client) starts its view worker from init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeClassifier returns a fixed outcome and counts calls.
type fakeClassifier struct {
	out   category.Outcome
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, string) category.Outcome {
	f.calls.Add(1)
	return f.out
}

// fakeSearcher returns fixed matches or an error and counts calls.
type fakeSearcher struct {
	matches []retrieval.Match
	err     error
	calls   atomic.Int32
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]retrieval.Match, error) {
	f.calls.Add(1)
	return f.matches, f.err
}

type fixture struct {
	pipeline   *Pipeline
	classifier *fakeClassifier
	searcher   *fakeSearcher
	sessions   *conversation.Store
	spans      *tracetest.SpanRecorder
}

func newFixture(t *testing.T, out category.Outcome) *fixture {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := &fixture{
		classifier: &fakeClassifier{out: out},
		searcher: &fakeSearcher{matches: []retrieval.Match{
			{Article: knowledge.Article{ID: 7, Title: "VPN troubleshooting"}, Score: 0.82, Semantic: true},
		}},
		sessions: conversation.New(conversation.Config{}),
		spans:    sr,
	}
	f.pipeline = NewPipeline(signals.NewExtractor(), f.classifier, rules.Default(), f.searcher, f.sessions,
		PipelineConfig{Tracer: tp.Tracer("test")})
	return f
}

func msg(sender, text string) support.Message {
	return support.NewMessage(sender, text, time.Now())
}

func TestTriage_ConversationalShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.9})
	d := f.pipeline.Triage(context.Background(), msg("u1", "hello there"))

	if d.Kind != KindConversational {
		t.Fatalf("Kind = %q, want conversational", d.Kind)
	}
	if d.Intent != signals.IntentGreeting {
		t.Errorf("Intent = %q, want greeting", d.Intent)
	}
	if d.Reply == "" {
		t.Error("expected a contextual reply")
	}
	if d.Ticket != nil || d.Classification != nil {
		t.Error("conversational decision must not carry a ticket or classification")
	}
	if f.classifier.calls.Load() != 0 || f.searcher.calls.Load() != 0 {
		t.Errorf("classifier calls = %d, search calls = %d, want none", f.classifier.calls.Load(), f.searcher.calls.Load())
	}

	sess, ok := f.sessions.Get("u1")
	if !ok || len(sess.History) != 1 {
		t.Fatalf("session = %+v, %v; want one recorded turn", sess, ok)
	}
}

func TestTriage_ShortLowConfidenceGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"no IT keyword", "my thing is weird", KindConversational},
		{"vpn keyword overrides", "my vpn is weird", KindTicketRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.2})
			d := f.pipeline.Triage(context.Background(), msg("u-"+tt.name, tt.text))
			if d.Kind != tt.want {
				t.Errorf("Triage(%q).Kind = %q, want %q", tt.text, d.Kind, tt.want)
			}
			if tt.want == KindConversational && d.Ticket != nil {
				t.Error("guarded message must not request a ticket")
			}
		})
	}
}

func TestTriage_GuardNeedsLowConfidence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategorySoftware, Confidence: 0.6})
	d := f.pipeline.Triage(context.Background(), msg("u2", "my thing is weird"))
	if d.Kind != KindTicketRequest {
		t.Errorf("Kind = %q, want ticket_request when the model is confident", d.Kind)
	}
}

func TestTriage_AutoResolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryAccess, Confidence: 0.9})
	d := f.pipeline.Triage(context.Background(), msg("u3", "I forgot password for my account"))

	if d.Kind != KindAutoResolved {
		t.Fatalf("Kind = %q, want auto_resolved", d.Kind)
	}
	if !strings.Contains(d.Reply, "Password reset instructions") {
		t.Errorf("Reply = %q", d.Reply)
	}
	if d.FollowUp == "" {
		t.Error("expected a follow-up prompt")
	}
	if d.Ticket != nil {
		t.Error("auto-resolved decision must not request a ticket")
	}
	if len(d.Suggestions) != 1 {
		t.Errorf("suggestions = %d, want retrieval attached", len(d.Suggestions))
	}
}

func TestTriage_AutoResolveRespectsRuleCategory(t *testing.T) {
	t.Parallel()

	// the password rule is scoped to access
	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.9})
	d := f.pipeline.Triage(context.Background(), msg("u4", "I forgot password for my account"))
	if d.Kind != KindTicketRequest {
		t.Errorf("Kind = %q, want ticket_request", d.Kind)
	}
}

func TestTriage_TicketRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.85})
	d := f.pipeline.Triage(context.Background(), msg("u5", "production vpn is down, urgent"))

	if d.Kind != KindTicketRequest {
		t.Fatalf("Kind = %q, want ticket_request", d.Kind)
	}
	c := d.Classification
	if c.Category != support.CategoryNetwork || c.Priority != support.PriorityHigh {
		t.Errorf("classification = %+v", c)
	}
	if c.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", c.Confidence)
	}

	req := d.Ticket
	if req.Team != "Network Team" {
		t.Errorf("Team = %q", req.Team)
	}
	if req.SLA.ResponseHours != 1 || req.SLA.ResolutionHours != 4 {
		t.Errorf("SLA = %+v, want high row", req.SLA)
	}
	if !req.Escalate {
		t.Error("urgent message should escalate")
	}
	if req.Subject != "production vpn is down, urgent" {
		t.Errorf("Subject = %q", req.Subject)
	}
}

func TestTriage_SubjectTruncated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategorySoftware, Confidence: 0.9})
	long := "the software " + strings.Repeat("x", 200)
	d := f.pipeline.Triage(context.Background(), msg("u6", long))
	if got := len([]rune(d.Ticket.Subject)); got != 100 {
		t.Errorf("subject length = %d, want 100", got)
	}
	if d.Ticket.Description != long {
		t.Error("description should carry the full text")
	}
}

func TestTriage_DescriptionDrawsOnHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryHardware, Confidence: 0.9})
	ctx := context.Background()
	f.pipeline.Triage(ctx, msg("u7", "my laptop screen flickers"))
	d := f.pipeline.Triage(ctx, msg("u7", "it still flickers after a reboot"))

	if d.Kind != KindTicketRequest {
		t.Fatalf("Kind = %q", d.Kind)
	}
	want := "it still flickers after a reboot\n\nEarlier in this conversation:\n- my laptop screen flickers"
	if d.Ticket.Description != want {
		t.Errorf("Description = %q, want %q", d.Ticket.Description, want)
	}
}

func TestTriage_SearchFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.9})
	f.searcher.err = errors.New("store down")
	f.searcher.matches = nil

	d := f.pipeline.Triage(context.Background(), msg("u8", "wifi keeps dropping in the office"))
	if d.Kind != KindTicketRequest {
		t.Fatalf("Kind = %q", d.Kind)
	}
	if d.Suggestions == nil || len(d.Suggestions) != 0 {
		t.Errorf("Suggestions = %#v, want empty non-nil", d.Suggestions)
	}
}

func TestTriage_DegradedModelStillDecides(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryOther, Confidence: 0.5, Degraded: true, Reason: "timeout"})
	d := f.pipeline.Triage(context.Background(), msg("u9", "outlook crashes when opening attachments"))

	if d.Kind != KindTicketRequest {
		t.Fatalf("Kind = %q", d.Kind)
	}
	if !d.Classification.ModelDegraded || d.Ticket.Team != "General IT Support" {
		t.Errorf("classification = %+v team = %q", d.Classification, d.Ticket.Team)
	}
}

func TestTriage_Spans(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.9})
	f.pipeline.Triage(context.Background(), msg("u10", "vpn drops every hour"))

	names := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range f.spans.Ended() {
		names[s.Name()] = s
	}
	for _, want := range []string{"triage.Pipeline.Triage", "triage.classify", "triage.search"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing span %q", want)
		}
	}

	root := names["triage.Pipeline.Triage"]
	if root == nil {
		t.FailNow()
	}
	attrs := map[string]string{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["triage.kind"] != string(KindTicketRequest) || attrs["triage.category"] != "network" {
		t.Errorf("root attributes = %v", attrs)
	}
	if child := names["triage.classify"]; child != nil && child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("classify span should be a child of the triage span")
	}
}

func TestTriage_ConcurrentSendersKeepHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryNetwork, Confidence: 0.9})
	ctx := context.Background()

	const senders, turns = 8, 6
	var wg sync.WaitGroup
	for s := range senders {
		for i := range turns {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.pipeline.Triage(ctx, msg(fmt.Sprintf("s%d", s), fmt.Sprintf("vpn problem number %d", i)))
			}()
		}
	}
	wg.Wait()

	for s := range senders {
		sess, ok := f.sessions.Get(fmt.Sprintf("s%d", s))
		if !ok || len(sess.History) != turns {
			t.Errorf("sender s%d history = %d, want %d", s, len(sess.History), turns)
		}
	}
}

func TestClassify_DoesNotTouchSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, category.Outcome{Category: support.CategoryHardware, Confidence: 0.7})
	c := f.pipeline.Classify(context.Background(), "printer is broken")

	if c.Category != support.CategoryHardware || c.Priority != support.PriorityHigh {
		t.Errorf("Classify = %+v", c)
	}
	// (0.7 + 0.8) / 2
	if c.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", c.Confidence)
	}
	if _, ok := f.sessions.Get(""); ok {
		t.Error("Classify must not create sessions")
	}
}

func TestNewPipeline_PanicsOnMissingDependency(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewPipeline(signals.NewExtractor(), nil, rules.Default(), &fakeSearcher{}, conversation.New(conversation.Config{}), PipelineConfig{})
}
