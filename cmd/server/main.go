// Deskside triages IT-support messages, suggests knowledge-base articles
// and opens tickets for what it cannot resolve.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/prof"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/go-core/health"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/deskside/internal/category"
	vc "github.com/linnemanlabs/deskside/internal/cfg"
	"github.com/linnemanlabs/deskside/internal/conversation"
	"github.com/linnemanlabs/deskside/internal/embedding"
	"github.com/linnemanlabs/deskside/internal/knowledge"
	knowledgemem "github.com/linnemanlabs/deskside/internal/knowledge/memstore"
	knowledgepg "github.com/linnemanlabs/deskside/internal/knowledge/pgstore"
	"github.com/linnemanlabs/deskside/internal/llm/claude"
	"github.com/linnemanlabs/deskside/internal/llm/huggingface"
	"github.com/linnemanlabs/deskside/internal/notify"
	"github.com/linnemanlabs/deskside/internal/notify/email"
	"github.com/linnemanlabs/deskside/internal/notify/slack"
	"github.com/linnemanlabs/deskside/internal/postgres"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/rules"
	"github.com/linnemanlabs/deskside/internal/signals"
	"github.com/linnemanlabs/deskside/internal/supportapi"
	"github.com/linnemanlabs/deskside/internal/ticket"
	ticketmem "github.com/linnemanlabs/deskside/internal/ticket/memstore"
	ticketpg "github.com/linnemanlabs/deskside/internal/ticket/pgstore"
	"github.com/linnemanlabs/deskside/internal/triage"
)

const appName = "deskside"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg    vc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix DESKSIDE_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "DESKSIDE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// cross-cutting checks that only main can validate
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// create a logger with component field pre-filled for structured logging in this package
	L := lg.With("component", vi.Component)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"trace_sample", traceCfg.TraceSample,
		"trace_insecure", traceCfg.Insecure,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"pyro_server", profCfg.PyroServer,
		"pyro_tenant", profCfg.PyroTenantID,
		"include_error_links", logCfg.IncludeErrorLinks,
		"max_error_links", logCfg.MaxErrorLinks,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
		"classifier_provider", appCfg.ClassifierProvider,
		"embedding_provider", appCfg.EmbeddingProvider,
		"search_limit", appCfg.SearchLimit,
		"session_timeout_minutes", appCfg.SessionTimeoutMinutes,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Tie profiles to spans once otel has installed its provider
	if profErr == nil && profCfg.EnablePyroscope {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	// Triage metrics on the shared Prometheus registry
	triageMetrics := triage.NewMetrics(m.Registry())

	// Register per-query DB duration histogram and wire the observer.
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deskside_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "store", "operation", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, q postgres.QueryStats) {
			dbQueryDuration.WithLabelValues(q.Method, q.Route, q.Store, q.Operation, q.Outcome).Observe(q.Duration.Seconds())
		},
	))

	// Ticket and knowledge stores share one pool when a database is configured
	var (
		ticketStore ticket.Store
		kbStore     knowledge.Store
	)
	if appCfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL, postgres.Options{
			MinLogDuration: time.Duration(appCfg.QueryLogMillis) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		tickets, err := ticketpg.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("ticket pgstore init: %w", err)
		}
		articles, err := knowledgepg.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("knowledge pgstore init: %w", err)
		}
		ticketStore, kbStore = tickets, articles
		L.Info(ctx, "using postgres stores")
	} else {
		ticketStore, kbStore = ticketmem.New(), knowledgemem.New()
		L.Info(ctx, "using in-memory stores (no database-url configured)")
	}

	// Rule tables: built-ins unless a YAML override is configured
	ruleEngine := rules.Default()
	if appCfg.RulesFile != "" {
		ruleEngine, err = rules.LoadFile(appCfg.RulesFile)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		L.Info(ctx, "loaded rule tables", "path", appCfg.RulesFile)
	}

	modelTimeout := time.Duration(appCfg.ModelTimeoutSeconds) * time.Second

	// Zero-shot category scorer. With no provider every call degrades to "other".
	var scorer category.Scorer
	switch appCfg.ClassifierProvider {
	case vc.ProviderClaude:
		scorer = claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel)
		L.Info(ctx, "initialized classifier", "provider", "claude", "model", appCfg.ClaudeModel)
	case vc.ProviderHuggingFace:
		scorer = huggingface.New(appCfg.HFEndpoint, appCfg.HFModel, appCfg.HFAPIToken)
		L.Info(ctx, "initialized classifier", "provider", "huggingface", "model", appCfg.HFModel)
	default:
		L.Warn(ctx, "no classifier configured, categories will fall back to other")
	}
	categoryModel := category.New(scorer, modelTimeout, L, triageMetrics.CategoryHooks())

	// Embedding backend. Without one the index answers with keyword search only.
	var embedder embedding.Embedder
	switch appCfg.EmbeddingProvider {
	case vc.ProviderGenAI:
		g, err := embedding.NewGenAI(ctx, appCfg.GenAIAPIKey, appCfg.GenAIModel)
		if err != nil {
			return fmt.Errorf("genai embedder: %w", err)
		}
		embedder = g
	case vc.ProviderOllama:
		embedder = embedding.NewOllama(appCfg.OllamaEndpoint, appCfg.OllamaModel)
	}
	if embedder != nil {
		L.Info(ctx, "initialized embedder", "embedder", embedder.Name())
	} else {
		L.Warn(ctx, "no embedder configured, knowledge search will use keywords only")
	}

	index := retrieval.New(kbStore, embedder, retrieval.Config{
		Timeout: modelTimeout,
		Logger:  L,
		Hooks:   triageMetrics.RetrievalHooks(),
	})

	if appCfg.BackfillOnStart && embedder != nil {
		n, err := index.Backfill(ctx)
		if err != nil {
			// serve anyway; unembedded articles stay reachable by keyword
			L.Error(ctx, err, "knowledge backfill failed", "embedded", n)
		} else {
			L.Info(ctx, "knowledge backfill complete", "embedded", n)
		}
	}

	// Ticket notifications fan out to every configured channel
	var notifiers []ticket.Notifier
	if appCfg.SMTPHost != "" {
		mailer, err := email.New(email.Config{
			Host:      appCfg.SMTPHost,
			Port:      appCfg.SMTPPort,
			Username:  appCfg.SMTPUsername,
			Password:  appCfg.SMTPPassword,
			TLS:       appCfg.SMTPTLS,
			From:      appCfg.SMTPFrom,
			Domain:    appCfg.EmailDomain,
			Recipient: appCfg.EmailRecipient,
			Signature: appCfg.EmailSignature,
		}, L)
		if err != nil {
			return fmt.Errorf("email notifier: %w", err)
		}
		notifiers = append(notifiers, mailer)
		L.Info(ctx, "notifier enabled", "type", "email", "smtp_host", appCfg.SMTPHost)
	}
	if appCfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, slack.New(appCfg.SlackWebhookURL, L))
		L.Info(ctx, "notifier enabled", "type", "slack")
	}
	var notifier ticket.Notifier
	if len(notifiers) > 0 {
		notifier = notify.New(notifiers...)
	}

	ticketSvc := ticket.NewService(ticketStore, ruleEngine, notifier, L, triageMetrics.TicketHooks())

	sessions := conversation.New(conversation.Config{
		Timeout: time.Duration(appCfg.SessionTimeoutMinutes) * time.Minute,
	})

	pipeline := triage.NewPipeline(signals.NewExtractor(), categoryModel, ruleEngine, index, sessions, triage.PipelineConfig{
		SearchLimit: appCfg.SearchLimit,
		Logger:      L,
		Hooks:       triageMetrics.Hooks(),
	})
	supportSvc := triage.NewService(pipeline, ticketSvc, triage.ServiceConfig{
		NotifyFrom:   appCfg.NotifyFrom,
		EmailUpdates: appCfg.SMTPHost != "",
		Logger:       L,
	})

	// setup toggle for server shutdown. this is used to fail readiness checks
	// during shutdown to drain connections from load balancer before killing the process.
	var shutdownGate health.ShutdownGate

	// setup readiness checks, currently just the shutdown gate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// start admin/ops listener. sg restricts inbound to internal monitoring infrastructure.
	// we reject connections from public ips and requests with x-forwarded set in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic here
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// setup main api chi router and middleware stack
	r := chi.NewRouter()

	// Compress text responses (we are JSON only for now)
	r.Use(middleware.Compress(5, "application/json"))

	// Annotate logger (and tracer if trace is recording) with http.route from chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// Stash HTTP method in context for DB query metrics labelling.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(postgres.WithHTTPMethod(req.Context(), req.Method)))
		})
	})

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Limit request body size, this is a wrapper around http.MaxBytesHandler which returns 413 if limit is exceeded
	r.Use(httpmw.MaxBody(1024 * 64)) // 64KB to start with may adjust after i see real traffic

	// add health check endpoints to main listener
	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	// register api routes
	supportHTTP := supportapi.New(L, supportapi.Deps{
		Chat:     supportSvc,
		Index:    index,
		Articles: kbStore,
		Tickets:  ticketSvc,
	})
	supportHTTP.RegisterRoutes(r)

	// middleware stack for main listener, order matters these are wrappers, outermost sees raw request
	// first and is last to see response, innermost is last to see request and first to see response but
	// has access to the full rich context from outer middleware and handlers
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, chi route, etc)
	h = httpmw.WithLogger(L)(h)

	// add trace-id and span-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// otel instrumentation for automatic spans and trace context propagation
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// dont trace health/readiness checks
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute will rename the span later to the final route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	// Metrics middleware for prometheus instrumentation
	h = m.Middleware(h)

	// Client IP resolution and spoofing protection middleware, outer so downstream middleware
	// and handlers can use the resolved client ip from context for consistency and security
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: httpmwCfg.TrustedProxyHops,
	})(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h) // request ID

	// Recovery middleware to recover and log panics and serve 500 response.
	// Outer to catch panics from any downstream middleware or handlers
	h = httpmw.Recover(L, nil)(h)

	// Security headers outermost to ensure they are served on every response
	h = httpmw.SecurityHeaders(h)

	// Configure http server options from config
	apiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	// Start API HTTP server with middleware and handlers
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		err := apiHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Wait for ctrl+c / sigterm
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// Wait for in-flight requests to finish and for load balancer
	// to detect unhealthy and stop sending new requests.
	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// Shutdown components with per-component budget sliced from total.
	// stopProf is synchronous and needs no context, so it's excluded.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"ticket notifications", func(ctx context.Context) error { return waitCtx(ctx, ticketSvc.Wait) }},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// waitCtx runs wait and returns early with ctx's error if ctx ends first.
func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
