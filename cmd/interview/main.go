// Interview runs a discovery session in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/bbp-discovery/internal/app"
	"github.com/ashureev/bbp-discovery/internal/config"
	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/tui"
)

type options struct {
	sessionID  string
	out        string
	logFile    string
	backend    string
	model      string
	baseURL    string
	references []string
	choices    map[string]string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Run a Business Blueprint discovery interview in the terminal",
		Long: `Interview walks through the SAP Ariba sourcing sub-processes one question
at a time, collects follow-up answers, and keeps a running process summary.
Configuration comes from the environment (and .env), the same as the server;
flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.sessionID, "session", "", "session ID (default: generated)")
	f.StringVarP(&opts.out, "out", "o", "", "write the markdown export here on ctrl+e and on exit")
	f.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file (default: discard)")
	f.StringVar(&opts.backend, "backend", "", "generation backend: openai, ollama or grpc")
	f.StringVar(&opts.model, "model", "", "model name")
	f.StringVar(&opts.baseURL, "base-url", "", "base URL of the OpenAI-compatible endpoint")
	f.StringSliceVar(&opts.references, "reference", nil, "reference document glob (repeatable)")
	f.StringToStringVar(&opts.choices, "set", nil, "client profile choice, e.g. --set industry=Retail")
	return cmd
}

func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { _ = f.Close() }, nil
}

func applyFlags(cfg *config.Config, opts *options) error {
	if opts.backend != "" {
		cfg.LLM.Backend = opts.backend
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if opts.baseURL != "" {
		cfg.LLM.BaseURL = opts.baseURL
	}
	if len(opts.references) > 0 {
		cfg.Reference.Patterns = opts.references
	}
	// The terminal session has no file watcher to react to.
	cfg.Reference.Watch = false
	return cfg.Validate()
}

func run(ctx context.Context, opts *options) error {
	logger, closeLog, err := newLogger(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, opts); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("Failed to close app", "error", closeErr)
		}
	}()

	model := tui.New(ctx, a.Service, tui.Options{
		SessionID:  opts.sessionID,
		Choices:    opts.choices,
		ExportPath: opts.out,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil &&
		!errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run interview: %w", err)
	}

	s := model.Session()
	if s == nil {
		return nil
	}
	if opts.out != "" {
		if err := os.WriteFile(opts.out, []byte(discovery.ExportMarkdown(s)), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("Session %s exported to %s\n", s.ID, opts.out)
	} else {
		fmt.Printf("Session %s ended in state %s after %d exchange(s)\n", s.ID, s.State, s.Transcript.Len())
	}
	return nil
}
