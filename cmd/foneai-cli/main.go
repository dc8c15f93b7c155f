package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"foneai-widget/internal/app"
	"foneai-widget/internal/chat"
	"foneai-widget/internal/config"
	"foneai-widget/internal/logging"
	"foneai-widget/internal/render"
	"foneai-widget/internal/store"
	"foneai-widget/internal/tui"
)

// cliOptions are the global flags.
type cliOptions struct {
	webhookURL string
	responder  string
	verbose    bool
	logFile    string
	exportPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &cliOptions{}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
	chatCmd.Flags().StringVar(&opts.exportPath, "export", "", "Write the transcript as JSON to this file on exit")

	askCmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a single question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), opts, strings.Join(args, " "), out)
		},
	}

	rootCmd := &cobra.Command{
		Use:   "foneai-cli",
		Short: "F1 chat in the terminal",
		Long: `foneai-cli talks to the same automation webhook as the F1 chat widget.

Run without arguments to start the interactive chat interface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chatCmd.RunE,
	}
	rootCmd.Flags().StringVar(&opts.exportPath, "export", "", "Write the transcript as JSON to this file on exit")
	rootCmd.PersistentFlags().StringVar(&opts.webhookURL, "webhook-url", "", "Automation webhook URL (or set WEBHOOK_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.responder, "responder", "", "webhook, simulate or openai (or set RESPONDER)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	return rootCmd
}

// loadApp applies flag overrides on top of the environment.
func loadApp(ctx context.Context, opts *cliOptions) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.webhookURL != "" {
		cfg.WebhookURL = opts.webhookURL
		if opts.responder == "" {
			cfg.Responder = config.ResponderWebhook
		}
	}
	if opts.responder != "" {
		cfg.Responder = strings.ToLower(opts.responder)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.ForCLI(opts.logFile, opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	return app.Build(ctx, cfg, logger)
}

func runChat(ctx context.Context, opts *cliOptions) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Logger.Sync()

	ctl := a.NewController(chat.NewSession())
	model := tui.NewModel(ctx, ctl, tui.Options{Markdown: a.Formatter.Mode() == render.ModeMarkdown})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat ui: %w", err)
	}

	if opts.exportPath != "" {
		return exportTranscript(context.WithoutCancel(ctx), ctl, opts.exportPath, a.Logger)
	}
	return nil
}

func exportTranscript(ctx context.Context, ctl *chat.Controller, path string, logger *zap.Logger) error {
	msgs, err := ctl.Transcript(ctx)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	err = store.NewFileStore(path).Write(&store.Export{
		SessionID:  ctl.Session().ID(),
		ExportedAt: time.Now().UTC(),
		Messages:   msgs,
	})
	if err != nil {
		return fmt.Errorf("export transcript: %w", err)
	}
	logger.Info("transcript exported", zap.String("path", path), zap.Int("messages", len(msgs)))
	return nil
}

func runAsk(ctx context.Context, opts *cliOptions, question string, out io.Writer) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Logger.Sync()

	ctl := a.NewController(chat.NewSession())
	turn, err := ctl.Submit(ctx, question)
	if errors.Is(err, chat.ErrRejected) {
		return errors.New("question is empty")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, turn.Reply.Text)
	if turn.Reply.Role == chat.RoleError {
		return fmt.Errorf("no answer: %w", turn.Err)
	}
	return nil
}
