package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/deskside/internal/category"
	"github.com/linnemanlabs/deskside/internal/conversation"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/rules"
	"github.com/linnemanlabs/deskside/internal/signals"
	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

func TestMetrics_DecisionHooks(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	p := NewPipeline(signals.NewExtractor(),
		&fakeClassifier{out: category.Outcome{Category: support.CategoryNetwork, Confidence: 0.2}},
		rules.Default(), &fakeSearcher{}, conversation.New(conversation.Config{}),
		PipelineConfig{Hooks: m.Hooks()})

	ctx := context.Background()
	p.Triage(ctx, msg("a", "hello"))
	p.Triage(ctx, msg("b", "my thing is weird"))
	p.Triage(ctx, msg("c", "my vpn is weird"))

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(string(KindConversational))); got != 2 {
		t.Errorf("conversational decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(string(KindTicketRequest))); got != 1 {
		t.Errorf("ticket decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GuardTotal); got != 1 {
		t.Errorf("guard activations = %v, want 1", got)
	}
}

func TestMetrics_ComponentHooks(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())

	ch := m.CategoryHooks()
	ch.OnScore(0.1, nil)
	ch.OnScore(0.2, errors.New("boom"))
	ch.OnDegraded("timeout")

	rh := m.RetrievalHooks()
	rh.OnFallback(retrieval.FallbackEmbed)
	rh.OnFallback(retrieval.FallbackCache)
	rh.OnReload(12, 0.05)
	rh.OnEmbed(0.3, nil)

	th := m.TicketHooks()
	th.OnCreated(ticket.Ticket{Source: ticket.SourceChatbot, Category: support.CategoryNetwork})
	th.OnNotify("created", errors.New("webhook down"))

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"classifier success", m.ModelCallsTotal.WithLabelValues("classifier", "success"), 1},
		{"classifier error", m.ModelCallsTotal.WithLabelValues("classifier", "error"), 1},
		{"embedder success", m.ModelCallsTotal.WithLabelValues("embedder", "success"), 1},
		{"model fallback", m.FallbacksTotal.WithLabelValues("model_fallback"), 1},
		{"embed fallback", m.FallbacksTotal.WithLabelValues(retrieval.FallbackEmbed), 1},
		{"cache fallback", m.FallbacksTotal.WithLabelValues(retrieval.FallbackCache), 1},
		{"cache reloads", m.CacheReloadsTotal, 1},
		{"cache articles", m.CacheArticles, 12},
		{"tickets", m.TicketsCreatedTotal.WithLabelValues("chatbot", "network"), 1},
		{"notify error", m.NotificationsTotal.WithLabelValues("created", "error"), 1},
	}
	for _, tt := range checks {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}
