// Package app assembles the discovery stack from configuration. Both the
// HTTP server and the terminal interview build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashureev/bbp-discovery/internal/advisor"
	"github.com/ashureev/bbp-discovery/internal/config"
	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/prompt"
	"github.com/ashureev/bbp-discovery/internal/reference"
	"github.com/ashureev/bbp-discovery/internal/store"
)

// App is the wired stack.
type App struct {
	Config    *config.Config
	Repo      *store.SQLiteStore
	Generator generation.Generator
	Advisor   *advisor.Advisor
	Service   *discovery.Service
	Library   *reference.Library

	logger  *slog.Logger
	closers []func() error
}

// Options tweaks Build. Zero values are fine.
type Options struct {
	// Registerer receives generation metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Backend replaces the configured generation backend.
	Backend generation.Generator
}

// Build opens the store, connects the generation backend and wires the
// discovery service. Sessions left in the store by a previous run are purged.
// Call Close when done, even after an error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return a, fmt.Errorf("initialize database: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	if err := repo.Ping(ctx); err != nil {
		return a, fmt.Errorf("database health check: %w", err)
	}
	purged, err := repo.PurgeSessions(ctx)
	if err != nil {
		return a, fmt.Errorf("purge sessions: %w", err)
	}
	logger.Info("Database connected", "purged_sessions", purged)

	backend := opts.Backend
	if backend == nil {
		backend, err = a.newBackend(cfg.LLM)
		if err != nil {
			return a, err
		}
	}

	convLogger, err := generation.NewConversationLogger(generation.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return a, fmt.Errorf("initialize conversation logger: %w", err)
	}
	a.closers = append(a.closers, convLogger.Close)

	gen := generation.WithTimeout(backend, cfg.LLM.Timeout)
	if opts.Registerer != nil {
		gen = generation.Instrument(gen, generation.NewMetrics(opts.Registerer))
	}
	a.Generator = generation.Record(gen, convLogger)

	prompts, err := loadPrompts(cfg.PromptDir)
	if err != nil {
		return a, err
	}
	a.Advisor = advisor.New(a.Generator, prompts)

	choices := discovery.NewChoiceRegistry(nil)
	if cfg.UserChoicesFile != "" {
		loaded, err := discovery.LoadChoices(cfg.UserChoicesFile)
		if err != nil {
			return a, err
		}
		choices = discovery.NewChoiceRegistry(loaded)
	}

	a.Library = reference.NewLibrary(cfg.Reference.Patterns, cfg.Reference.MaxChars, logger)
	if cfg.Reference.Watch && len(a.Library.Patterns()) > 0 {
		w, err := reference.NewWatcher(a.Library, 0, logger)
		if err != nil {
			return a, fmt.Errorf("create reference watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			return a, fmt.Errorf("start reference watcher: %w", err)
		}
		a.closers = append(a.closers, w.Stop)
	}

	subprocesses, err := a.subprocessSource(cfg)
	if err != nil {
		return a, err
	}

	a.Service, err = discovery.NewService(discovery.ServiceConfig{
		Repository:   repo,
		Workflow:     discovery.NewWorkflow(a.Advisor, cfg.QuestionRetryLimit, logger),
		Subprocesses: subprocesses,
		Context:      a.Library,
		Choices:      choices,
		Logger:       logger,
	})
	if err != nil {
		return a, err
	}
	return a, nil
}

func (a *App) newBackend(cfg config.LLMConfig) (generation.Generator, error) {
	switch cfg.Backend {
	case config.BackendGRPC:
		g, err := generation.NewGRPC(generation.DefaultGRPCConfig(cfg.GRPCAddr), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect generation backend: %w", err)
		}
		a.closers = append(a.closers, func() error { g.Close(); return nil })
		a.logger.Info("Generation backend connected", "backend", cfg.Backend, "address", cfg.GRPCAddr)
		return g, nil
	case config.BackendOpenAI, config.BackendOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = generation.DefaultOllamaBaseURL
			if cfg.Backend == config.BackendOpenAI {
				baseURL = generation.DefaultOpenAIBaseURL
			}
		}
		a.logger.Info("Generation backend configured", "backend", cfg.Backend, "base_url", baseURL, "model", cfg.Model)
		return generation.NewOpenAI(baseURL, cfg.Model,
			generation.WithAPIKey(cfg.APIKey),
			generation.WithTemperature(cfg.Temperature),
			generation.WithLogger(a.logger),
		), nil
	}
	return nil, fmt.Errorf("unknown generation backend %q", cfg.Backend)
}

func loadPrompts(dir string) (*prompt.Formatter, error) {
	if dir == "" {
		return prompt.New()
	}
	f, err := prompt.Load(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load prompt templates from %s: %w", dir, err)
	}
	return f, nil
}

// subprocessSource tries the YAML catalog, then extraction from the
// reference documents, then the built-in list.
func (a *App) subprocessSource(cfg *config.Config) (discovery.SubprocessSource, error) {
	var sources []discovery.SubprocessSource
	if cfg.SubprocessFile != "" {
		catalog, err := reference.LoadCatalog(cfg.SubprocessFile)
		if err != nil {
			return nil, err
		}
		sources = append(sources, catalog)
	}
	if len(a.Library.Patterns()) > 0 {
		sources = append(sources, discovery.GeneratedSubprocesses{Extractor: a.Advisor, Reference: a.Library})
	}
	return discovery.FallbackSubprocesses{
		Sources: sources,
		Default: reference.DefaultSubprocesses,
		Logger:  a.logger,
	}, nil
}

// Close releases everything Build opened, in reverse order.
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
