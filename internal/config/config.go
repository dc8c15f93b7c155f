package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
	// Responder is webhook, simulate or openai. Empty picks webhook when
	// WebhookURL is set and simulate otherwise.
	Responder string `env:"RESPONDER"`
	// Webhook
	WebhookURL         string        `env:"WEBHOOK_URL"`
	WebhookTimeout     time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"0s"`
	WebhookRateLimit   float64       `env:"WEBHOOK_RATE_LIMIT" envDefault:"0"`
	WebhookAuthHeader  string        `env:"WEBHOOK_AUTH_HEADER"`
	WebhookAuthValue   string        `env:"WEBHOOK_AUTH_VALUE"`
	WebhookBearerToken string        `env:"WEBHOOK_BEARER_TOKEN"`
	// Webhook OAuth client credentials
	OAuthTokenURL     string   `env:"WEBHOOK_OAUTH_TOKEN_URL"`
	OAuthClientID     string   `env:"WEBHOOK_OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"WEBHOOK_OAUTH_CLIENT_SECRET"`
	OAuthScopes       []string `env:"WEBHOOK_OAUTH_SCOPES" envSeparator:","`
	// OpenAI responder
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `env:"OPENAI_BASE_URL"`
	Model               string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	ResponderPromptFile string `env:"RESPONDER_PROMPT_FILE" envDefault:"prompts/responder.yaml"`
	// Widget
	CopyFile        string        `env:"COPY_FILE"`
	LoadingInterval time.Duration `env:"LOADING_INTERVAL" envDefault:"1s"`
	RenderMode      string        `env:"RENDER_MODE" envDefault:"breaks"`
	// Transcripts
	TranscriptStore string        `env:"TRANSCRIPT_STORE" envDefault:"memory"`
	MaxMessages     int           `env:"MAX_MESSAGES" envDefault:"0"`
	DBDriver        string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL     string        `env:"DB_URL"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	TranscriptTTL   time.Duration `env:"TRANSCRIPT_TTL" envDefault:"24h"`
	// Sessions
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

const (
	ResponderWebhook  = "webhook"
	ResponderSimulate = "simulate"
	ResponderOpenAI   = "openai"

	StoreMemory   = "memory"
	StoreDatabase = "database"
	StoreRedis    = "redis"
)

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse decodes the process environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Responder = strings.ToLower(strings.TrimSpace(cfg.Responder))
	if cfg.Responder == "" {
		cfg.Responder = ResponderSimulate
		if cfg.WebhookURL != "" {
			cfg.Responder = ResponderWebhook
		}
	}
	cfg.TranscriptStore = strings.ToLower(strings.TrimSpace(cfg.TranscriptStore))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot produce a working server.
func (c Config) Validate() error {
	switch c.Responder {
	case ResponderWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("RESPONDER=webhook requires WEBHOOK_URL")
		}
	case ResponderSimulate, ResponderOpenAI:
	default:
		return fmt.Errorf("unknown RESPONDER %q", c.Responder)
	}
	switch c.TranscriptStore {
	case StoreMemory:
	case StoreDatabase:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TRANSCRIPT_STORE=database requires DB_URL")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("TRANSCRIPT_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPT_STORE %q", c.TranscriptStore)
	}
	if c.WebhookTimeout < 0 || c.LoadingInterval <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be >= 0 and LOADING_INTERVAL > 0")
	}
	if (c.WebhookAuthHeader == "") != (c.WebhookAuthValue == "") {
		return fmt.Errorf("WEBHOOK_AUTH_HEADER and WEBHOOK_AUTH_VALUE must be set together")
	}
	return nil
}

// Warnings lists settings that are missing but not fatal.
func (c Config) Warnings() []string {
	var out []string
	if c.WebhookURL == "" && c.Responder == ResponderSimulate {
		out = append(out, "WEBHOOK_URL is not set; replies are simulated")
	}
	if c.Responder == ResponderOpenAI && c.OpenAIAPIKey == "" {
		out = append(out, "OPENAI_API_KEY is not set; API calls will fail until provided")
	}
	if c.AllowedOrigin == "*" && c.CookieSecure {
		out = append(out, "ALLOWED_ORIGIN is * while COOKIE_SECURE is on; browsers will not send the session cookie cross-site with credentials")
	}
	return out
}

// OAuthEnabled reports whether client-credential settings are complete.
func (c Config) OAuthEnabled() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}
