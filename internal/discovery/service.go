package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/reference"
)

// ErrBusy is returned when another request is already working on the session.
var ErrBusy = errors.New("session is busy")

// Repository persists sessions between requests.
type Repository interface {
	GetDiscoverySession(ctx context.Context, id string) (*domain.DiscoverySession, error)
	UpsertDiscoverySession(ctx context.Context, session *domain.DiscoverySession) error
	DeleteDiscoverySession(ctx context.Context, id string) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Repository   Repository
	Workflow     *Workflow
	Subprocesses SubprocessSource
	Context      ContextSource
	Choices      *ChoiceRegistry
	Logger       *slog.Logger
}

// Service loads, mutates and stores sessions. At most one operation runs
// per session at a time; a concurrent one fails with ErrBusy.
type Service struct {
	repo         Repository
	workflow     *Workflow
	subprocesses SubprocessSource
	context      ContextSource
	choices      *ChoiceRegistry
	logger       *slog.Logger

	locks sync.Map // session ID -> *sync.Mutex
}

// NewService creates a Service. Missing sources default to the built-in
// subprocess list and an empty reference context.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("discovery: repository is required")
	}
	if cfg.Workflow == nil {
		return nil, errors.New("discovery: workflow is required")
	}
	if cfg.Subprocesses == nil {
		cfg.Subprocesses = StaticSubprocesses(reference.DefaultSubprocesses)
	}
	if cfg.Context == nil {
		cfg.Context = StaticContext("")
	}
	if cfg.Choices == nil {
		cfg.Choices = NewChoiceRegistry(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:         cfg.Repository,
		workflow:     cfg.Workflow,
		subprocesses: cfg.Subprocesses,
		context:      cfg.Context,
		choices:      cfg.Choices,
		logger:       cfg.Logger,
	}, nil
}

// Choices returns the process-wide choice registry.
func (s *Service) Choices() *ChoiceRegistry {
	return s.choices
}

func (s *Service) lock(id string) (func(), error) {
	for {
		v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		if !mu.TryLock() {
			return nil, ErrBusy
		}
		// The entry may have been dropped while we were acquiring it.
		if cur, ok := s.locks.Load(id); ok && cur == v {
			return mu.Unlock, nil
		}
		mu.Unlock()
	}
}

// dropLock removes the lock entry for id. The caller must hold it.
func (s *Service) dropLock(id string, mu *sync.Mutex) {
	s.locks.CompareAndDelete(id, mu)
}

// Forget drops per-session bookkeeping for IDs removed outside the service.
// Sessions with an operation in flight keep their lock; that operation
// stores the session again when it finishes.
func (s *Service) Forget(ids []string) {
	for _, id := range ids {
		v, ok := s.locks.Load(id)
		if !ok {
			continue
		}
		mu := v.(*sync.Mutex)
		if !mu.TryLock() {
			s.logger.Debug("Session busy, keeping lock", "session_id", id)
			continue
		}
		s.dropLock(id, mu)
		mu.Unlock()
	}
}

func (s *Service) save(ctx context.Context, session *domain.DiscoverySession) error {
	if err := s.repo.UpsertDiscoverySession(ctx, session); err != nil {
		s.logger.Error("Failed to persist discovery session", "session_id", session.ID, "error", err)
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Start creates (or replaces) the session with the given ID: it snapshots
// the choices, loads the subprocess list and reference context, and asks
// for the first question. An empty id gets a fresh UUID. When the first
// question cannot be generated the session is still stored, in
// awaiting_question, and returned alongside the error.
func (s *Service) Start(ctx context.Context, id string, overrides map[string]string) (*domain.DiscoverySession, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx = generation.WithSession(ctx, id)
	choices := s.choices.Snapshot().Merge(overrides)

	subprocesses, err := s.subprocesses.Subprocesses(ctx, choices)
	if err != nil {
		return nil, fmt.Errorf("load subprocesses: %w", err)
	}
	ragContext, ctxErr := s.context.Context(ctx, choices)
	if ctxErr != nil {
		s.logger.Warn("Reference context unavailable, continuing without it", "session_id", id, "error", ctxErr)
		ragContext = ""
	}

	session := domain.NewDiscoverySession(id, subprocesses, choices, ragContext)
	if ctxErr != nil {
		session.AddDiagnostic("Reference material could not be loaded: " + ctxErr.Error())
	}
	s.logger.Info("Starting discovery session",
		"session_id", id, "subprocesses", len(subprocesses), "context_chars", len(ragContext))

	genErr := s.workflow.AdvanceQuestion(ctx, session)
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, genErr
}

// Get returns the stored session or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.DiscoverySession, error) {
	session, err := s.repo.GetDiscoverySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return session, nil
}

// mutate loads the session, applies fn and stores the result. The session
// is stored even when fn fails so partial progress and diagnostics are kept.
// Validation and state errors leave nothing to store.
func (s *Service) mutate(ctx context.Context, id string, fn func(context.Context, *domain.DiscoverySession) error) (*domain.DiscoverySession, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fnErr := fn(generation.WithSession(ctx, id), session)
	if errors.Is(fnErr, domain.ErrValidation) || errors.Is(fnErr, domain.ErrInvalidState) {
		return session, fnErr
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, fnErr
}

// RetryQuestion asks again for the current subprocess's question.
func (s *Service) RetryQuestion(ctx context.Context, id string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, s.workflow.AdvanceQuestion)
}

// SubmitAnswer records the main answer.
func (s *Service) SubmitAnswer(ctx context.Context, id, answer string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, func(ctx context.Context, session *domain.DiscoverySession) error {
		return s.workflow.SubmitMainAnswer(ctx, session, answer)
	})
}

// SetFollowups fills follow-up answers by position.
func (s *Service) SetFollowups(ctx context.Context, id string, answers []string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, func(_ context.Context, session *domain.DiscoverySession) error {
		return s.workflow.SetFollowupAnswers(session, answers)
	})
}

// Continue saves follow-ups and moves on to the next subprocess.
func (s *Service) Continue(ctx context.Context, id string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, s.workflow.SaveAndContinue)
}

// ReviseSummary applies a correction to the summary.
func (s *Service) ReviseSummary(ctx context.Context, id, correction string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, func(ctx context.Context, session *domain.DiscoverySession) error {
		return s.workflow.ReviseSummary(ctx, session, correction)
	})
}

// Recommend generates the recommendation.
func (s *Service) Recommend(ctx context.Context, id string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, s.workflow.GenerateRecommendation)
}

// ReviseRecommendation applies a correction to the recommendation.
func (s *Service) ReviseRecommendation(ctx context.Context, id, correction string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, func(ctx context.Context, session *domain.DiscoverySession) error {
		return s.workflow.ReviseRecommendation(ctx, session, correction)
	})
}

// UpdateChoices overlays choices on the session's copy.
func (s *Service) UpdateChoices(ctx context.Context, id string, choices map[string]string) (*domain.DiscoverySession, error) {
	return s.mutate(ctx, id, func(_ context.Context, session *domain.DiscoverySession) error {
		s.workflow.UpdateChoices(session, choices)
		return nil
	})
}

// Delete discards the session.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock, err := s.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.DeleteDiscoverySession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if v, ok := s.locks.Load(id); ok {
		s.dropLock(id, v.(*sync.Mutex))
	}
	s.logger.Info("Discovery session deleted", "session_id", id)
	return nil
}
