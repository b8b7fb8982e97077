package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Classifier and embedding backends selectable at startup.
const (
	ProviderClaude      = "claude"
	ProviderHuggingFace = "huggingface"
	ProviderGenAI       = "genai"
	ProviderOllama      = "ollama"
	ProviderNone        = "none"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	QueryLogMillis        int

	ClassifierProvider string
	ClaudeAPIKey       string
	ClaudeModel        string
	HFAPIToken         string
	HFModel            string
	HFEndpoint         string

	EmbeddingProvider string
	GenAIAPIKey       string
	GenAIModel        string
	OllamaEndpoint    string
	OllamaModel       string

	ModelTimeoutSeconds   int
	SearchLimit           int
	SessionTimeoutMinutes int
	RulesFile             string
	BackfillOnStart       bool

	SlackWebhookURL string
	NotifyFrom      string

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPTLS        string
	SMTPFrom       string
	EmailDomain    string
	EmailRecipient string
	EmailSignature string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.IntVar(&c.QueryLogMillis, "query-log-ms", 0, "only log successful queries slower than this many milliseconds (0 = all)")

	fs.StringVar(&c.ClassifierProvider, "classifier-provider", ProviderClaude, "zero-shot category backend: claude, huggingface or none")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude classifier")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5", "Claude model used for zero-shot classification")
	fs.StringVar(&c.HFAPIToken, "hf-api-token", "", "Hugging Face inference API token")
	fs.StringVar(&c.HFModel, "hf-model", "facebook/bart-large-mnli", "Hugging Face zero-shot model")
	fs.StringVar(&c.HFEndpoint, "hf-endpoint", "https://api-inference.huggingface.co/models", "Hugging Face inference base URL")

	fs.StringVar(&c.EmbeddingProvider, "embedding-provider", ProviderNone, "knowledge embedding backend: genai, ollama or none (keyword search only)")
	fs.StringVar(&c.GenAIAPIKey, "genai-api-key", "", "API key for the Gemini embedding model")
	fs.StringVar(&c.GenAIModel, "genai-model", "gemini-embedding-001", "Gemini embedding model")
	fs.StringVar(&c.OllamaEndpoint, "ollama-endpoint", "http://localhost:11434", "Ollama base URL")
	fs.StringVar(&c.OllamaModel, "ollama-model", "all-minilm", "Ollama embedding model")

	fs.IntVar(&c.ModelTimeoutSeconds, "model-timeout-seconds", 10, "timeout for a single classifier or embedding call (1..120)")
	fs.IntVar(&c.SearchLimit, "search-limit", 3, "knowledge suggestions attached to a triage decision (1..10)")
	fs.IntVar(&c.SessionTimeoutMinutes, "session-timeout-minutes", 30, "minutes of inactivity after which a conversation starts over (1..1440)")
	fs.StringVar(&c.RulesFile, "rules-file", "", "YAML file overriding the built-in rule tables (empty = built-ins)")
	fs.BoolVar(&c.BackfillOnStart, "backfill-on-start", false, "embed knowledge articles that lack an embedding at startup")

	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for ticket notifications")
	fs.StringVar(&c.NotifyFrom, "notify-from", "", "sender on notifications for chatbot tickets: an email address or a display name")

	fs.StringVar(&c.SMTPHost, "smtp-host", "", "SMTP relay for ticket emails (empty = email disabled)")
	fs.IntVar(&c.SMTPPort, "smtp-port", 587, "SMTP relay TCP port (1..65535)")
	fs.StringVar(&c.SMTPUsername, "smtp-username", "", "SMTP username (empty = no auth)")
	fs.StringVar(&c.SMTPPassword, "smtp-password", "", "SMTP password")
	fs.StringVar(&c.SMTPTLS, "smtp-tls", "mandatory", "SMTP STARTTLS mode: mandatory, opportunistic or none")
	fs.StringVar(&c.SMTPFrom, "smtp-from", "", "default From address on ticket emails")
	fs.StringVar(&c.EmailDomain, "email-domain", "", "domain for addresses derived from employee names")
	fs.StringVar(&c.EmailRecipient, "email-recipient", "", "send every ticket email to this address instead of the employee")
	fs.StringVar(&c.EmailSignature, "email-signature", "IT Support Team", "sign-off on ticket emails")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.QueryLogMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid QUERY_LOG_MS %d (must be >= 0)", c.QueryLogMillis))
	}

	switch c.ClassifierProvider {
	case ProviderClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude classifier"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude classifier"))
		}
	case ProviderHuggingFace:
		if c.HFModel == "" {
			errs = append(errs, errors.New("HF_MODEL is required for the huggingface classifier"))
		}
		if c.HFEndpoint == "" {
			errs = append(errs, errors.New("HF_ENDPOINT is required for the huggingface classifier"))
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER_PROVIDER %q (must be claude, huggingface or none)", c.ClassifierProvider))
	}

	switch c.EmbeddingProvider {
	case ProviderGenAI:
		if c.GenAIAPIKey == "" {
			errs = append(errs, errors.New("GENAI_API_KEY is required for the genai embedder"))
		}
	case ProviderOllama:
		if c.OllamaEndpoint == "" {
			errs = append(errs, errors.New("OLLAMA_ENDPOINT is required for the ollama embedder"))
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("invalid EMBEDDING_PROVIDER %q (must be genai, ollama or none)", c.EmbeddingProvider))
	}

	if c.ModelTimeoutSeconds <= 0 || c.ModelTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid MODEL_TIMEOUT_SECONDS %d (must be 1..120)", c.ModelTimeoutSeconds))
	}
	if c.SearchLimit <= 0 || c.SearchLimit > 10 {
		errs = append(errs, fmt.Errorf("invalid SEARCH_LIMIT %d (must be 1..10)", c.SearchLimit))
	}
	if c.SessionTimeoutMinutes <= 0 || c.SessionTimeoutMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid SESSION_TIMEOUT_MINUTES %d (must be 1..1440)", c.SessionTimeoutMinutes))
	}

	if c.SMTPHost != "" {
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT %d (must be 1..65535)", c.SMTPPort))
		}
		switch c.SMTPTLS {
		case "mandatory", "opportunistic", "none":
		default:
			errs = append(errs, fmt.Errorf("invalid SMTP_TLS %q (must be mandatory, opportunistic or none)", c.SMTPTLS))
		}
		if c.SMTPFrom == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
		}
		if c.EmailDomain == "" && c.EmailRecipient == "" {
			errs = append(errs, errors.New("EMAIL_DOMAIN or EMAIL_RECIPIENT is required when SMTP_HOST is set"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
