// Package app wires configuration into the responder, transcript store and
// renderer shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"foneai-widget/internal/chat"
	"foneai-widget/internal/config"
	"foneai-widget/internal/db"
	"foneai-widget/internal/llm"
	"foneai-widget/internal/render"
	"foneai-widget/internal/store"
	"foneai-widget/internal/webhook"
)

// App holds the long-lived dependencies every controller shares.
type App struct {
	Config    config.Config
	Exchanger chat.Exchanger
	Store     chat.Store
	Formatter *render.Formatter
	Copy      chat.Copy
	Logger    *zap.Logger

	responder *llm.Responder
	check     func(context.Context) error
	closers   []func() error
}

// Build constructs an App from cfg. Call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	mode, err := render.ParseMode(cfg.RenderMode)
	if err != nil {
		return nil, err
	}
	a.Formatter = render.NewFormatter(mode)

	a.Copy = chat.DefaultCopy()
	if cfg.CopyFile != "" {
		if a.Copy, err = chat.LoadCopy(cfg.CopyFile); err != nil {
			return nil, fmt.Errorf("load widget copy: %w", err)
		}
	}

	if err := a.buildExchanger(cfg); err != nil {
		return nil, err
	}
	if err := a.buildStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("app ready",
		zap.String("responder", cfg.Responder),
		zap.String("store", cfg.TranscriptStore),
		zap.String("render_mode", string(mode)))
	return a, nil
}

func (a *App) buildExchanger(cfg config.Config) error {
	switch cfg.Responder {
	case config.ResponderWebhook:
		opts := webhook.Options{
			URL:         cfg.WebhookURL,
			Timeout:     cfg.WebhookTimeout,
			AuthHeader:  cfg.WebhookAuthHeader,
			AuthValue:   cfg.WebhookAuthValue,
			BearerToken: cfg.WebhookBearerToken,
			RateLimit:   cfg.WebhookRateLimit,
			Logger:      a.Logger,
		}
		if cfg.OAuthEnabled() {
			opts.OAuth = &webhook.OAuthConfig{
				TokenURL:     cfg.OAuthTokenURL,
				ClientID:     cfg.OAuthClientID,
				ClientSecret: cfg.OAuthClientSecret,
				Scopes:       cfg.OAuthScopes,
			}
		}
		client, err := webhook.NewClient(opts)
		if err != nil {
			return fmt.Errorf("webhook client: %w", err)
		}
		a.Exchanger = client
	case config.ResponderOpenAI:
		spec, err := llm.LoadPromptSpec(cfg.ResponderPromptFile)
		if err != nil {
			return fmt.Errorf("load responder prompt: %w", err)
		}
		oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			oc.BaseURL = cfg.OpenAIBaseURL
		}
		a.responder = llm.NewResponder(spec, openai.NewClientWithConfig(oc), cfg.Model, a.Logger)
		a.Exchanger = a.responder
	case config.ResponderSimulate:
		a.Exchanger = webhook.NewSimulator()
	default:
		return fmt.Errorf("unknown responder %q", cfg.Responder)
	}
	return nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config) error {
	switch cfg.TranscriptStore {
	case config.StoreMemory, "":
		a.Store = store.NewMemoryStore(cfg.MaxMessages)
	case config.StoreDatabase:
		database, err := db.New(cfg.DBDriver, cfg.DatabaseURL, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, database.Close)
		if err := database.RunMigrations(db.Migrations, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		a.Store = store.NewDatabaseStore(database, cfg.MaxMessages)
		a.check = func(context.Context) error { return database.HealthCheck() }
	case config.StoreRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			TTL:         cfg.TranscriptTTL,
			MaxMessages: cfg.MaxMessages,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		a.Store = rs
		a.check = rs.Ping
	default:
		return fmt.Errorf("unknown transcript store %q", cfg.TranscriptStore)
	}
	return nil
}

// NewController starts a controller for session with the app's shared
// dependencies.
func (a *App) NewController(session chat.Session, opts ...chat.Option) *chat.Controller {
	base := []chat.Option{
		chat.WithCopy(a.Copy),
		chat.WithLoadingInterval(a.Config.LoadingInterval),
		chat.WithLogger(a.Logger),
	}
	return chat.NewController(session, a.Exchanger, a.Store, append(base, opts...)...)
}

// Persistent reports whether transcripts outlive this process.
func (a *App) Persistent() bool {
	return a.Config.TranscriptStore == config.StoreDatabase || a.Config.TranscriptStore == config.StoreRedis
}

// Forget removes everything kept for a session.
func (a *App) Forget(ctx context.Context, sessionID string) error {
	if a.responder != nil {
		a.responder.Forget(sessionID)
	}
	return a.Store.Delete(ctx, sessionID)
}

// Release drops what an idle session holds in memory. Persistent transcripts
// are kept so the session can be resumed later.
func (a *App) Release(ctx context.Context, sessionID string) error {
	if !a.Persistent() {
		return a.Forget(ctx, sessionID)
	}
	if a.responder != nil {
		a.responder.Forget(sessionID)
	}
	return nil
}

// Check pings the transcript backend. The memory store always passes.
func (a *App) Check(ctx context.Context) error {
	if a.check == nil {
		return nil
	}
	return a.check(ctx)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
