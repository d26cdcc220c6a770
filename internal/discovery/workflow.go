// Package discovery drives the interactive discovery interview: it walks the
// subprocess list, poses suggested questions, collects main and follow-up
// answers, and keeps the summary and recommendation current.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/bbp-discovery/internal/advisor"
	"github.com/ashureev/bbp-discovery/internal/domain"
)

// DefaultRetryLimit is how many times an empty suggestion list is retried
// for the same subprocess before the workflow skips it.
const DefaultRetryLimit = 1

// Advisor is the generation side of the workflow.
type Advisor interface {
	SuggestQuestions(ctx context.Context, req advisor.QuestionRequest) ([]string, error)
	GenerateFollowups(ctx context.Context, question, answer, ragContext string, t *domain.Transcript) ([]domain.Followup, error)
	GenerateUnderstanding(ctx context.Context, t *domain.Transcript) (string, error)
	ReviseUnderstanding(ctx context.Context, current, correction string) (string, error)
	GenerateRecommendation(ctx context.Context, t *domain.Transcript) (string, error)
	ReviseRecommendation(ctx context.Context, current, correction string) (string, error)
}

var _ Advisor = (*advisor.Advisor)(nil)

// Workflow applies state transitions to a session. It holds no session
// state itself; callers serialize access to each session.
type Workflow struct {
	advisor    Advisor
	retryLimit int
	logger     *slog.Logger
}

// NewWorkflow creates a Workflow. retryLimit < 1 uses DefaultRetryLimit.
func NewWorkflow(a Advisor, retryLimit int, logger *slog.Logger) *Workflow {
	if retryLimit < 1 {
		retryLimit = DefaultRetryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{advisor: a, retryLimit: retryLimit, logger: logger}
}

func invalidState(op string, s *domain.DiscoverySession) error {
	return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidState, op, s.State)
}

func touch(s *domain.DiscoverySession) {
	s.UpdatedAt = time.Now()
}

// AdvanceQuestion runs the entry action of awaiting_question: it asks for a
// suggested question for the subprocess under the cursor. Subprocesses that
// keep yielding no question are skipped with a diagnostic. A generation
// failure is returned and leaves the session in awaiting_question so the
// call can be retried.
func (w *Workflow) AdvanceQuestion(ctx context.Context, s *domain.DiscoverySession) error {
	if s.State != domain.StateAwaitingQuestion {
		return invalidState("request a question", s)
	}
	defer touch(s)

	for s.Cursor < len(s.Subprocesses) {
		subprocess := s.CurrentSubprocess()
		for attempt := 1; attempt <= w.retryLimit; attempt++ {
			questions, err := w.advisor.SuggestQuestions(ctx, advisor.QuestionRequest{
				Choices:    s.Choices,
				RAGContext: s.RAGContext,
				Transcript: &s.Transcript,
				Subprocess: subprocess,
			})
			if err != nil {
				w.logger.Error("Suggested question generation failed",
					"session_id", s.ID, "subprocess", subprocess, "error", err)
				return err
			}
			if len(questions) > 0 {
				s.CurrentQuestion = questions[0]
				s.MainAnswer = ""
				s.PendingFollowups = []domain.Followup{}
				s.State = domain.StateAwaitingMainAnswer
				return nil
			}
			w.logger.Warn("No suggested question returned",
				"session_id", s.ID, "subprocess", subprocess, "attempt", attempt)
		}

		s.AddDiagnostic(fmt.Sprintf("No question could be generated for %q after %d attempt(s); subprocess skipped.",
			subprocess, w.retryLimit))
		w.advance(s)
	}
	s.State = domain.StateCompleted
	return nil
}

// advance moves the cursor forward and settles the state.
func (w *Workflow) advance(s *domain.DiscoverySession) {
	if s.Cursor < len(s.Subprocesses) {
		s.Cursor++
	}
	s.CurrentQuestion = ""
	s.MainAnswer = ""
	s.PendingFollowups = []domain.Followup{}
	if s.Cursor >= len(s.Subprocesses) {
		s.State = domain.StateCompleted
		w.logger.Info("Discovery completed", "session_id", s.ID, "exchanges", s.Transcript.Len())
		return
	}
	s.State = domain.StateAwaitingQuestion
}

// SubmitMainAnswer records the answer to the current question, asks for
// follow-up questions and refreshes the summary. A blank answer is
// rejected and leaves the session untouched. Follow-up or summary
// failures are recorded as diagnostics: the exchange is kept with no
// follow-ups, or the previous summary stays.
func (w *Workflow) SubmitMainAnswer(ctx context.Context, s *domain.DiscoverySession, answer string) error {
	if s.State != domain.StateAwaitingMainAnswer {
		return invalidState("submit an answer", s)
	}
	if strings.TrimSpace(answer) == "" {
		return fmt.Errorf("%w: please enter an answer before proceeding", domain.ErrValidation)
	}
	defer touch(s)

	followups, err := w.advisor.GenerateFollowups(ctx, s.CurrentQuestion, answer, s.RAGContext, &s.Transcript)
	if err != nil {
		w.logger.Error("Follow-up generation failed", "session_id", s.ID, "error", err)
		s.AddDiagnostic("Follow-up questions could not be generated: " + err.Error())
		followups = []domain.Followup{}
	}

	ref := s.Transcript.AppendExchange(s.CurrentQuestion, answer)
	if err := s.Transcript.ReplaceFollowups(ref, followups); err != nil {
		return err
	}
	s.MainAnswer = answer
	s.PendingFollowups = append([]domain.Followup{}, followups...)
	s.State = domain.StateAwaitingFollowupAnswers

	summary, err := w.advisor.GenerateUnderstanding(ctx, &s.Transcript)
	if err != nil {
		w.logger.Error("Process understanding refresh failed", "session_id", s.ID, "error", err)
		s.AddDiagnostic("Process understanding could not be refreshed: " + err.Error())
		return nil
	}
	s.Understanding = summary
	return nil
}

// SetFollowupAnswers fills follow-up answers by position. Missing trailing
// answers keep their current value; blanks are allowed.
func (w *Workflow) SetFollowupAnswers(s *domain.DiscoverySession, answers []string) error {
	if s.State != domain.StateAwaitingFollowupAnswers {
		return invalidState("answer follow-ups", s)
	}
	if len(answers) > len(s.PendingFollowups) {
		return fmt.Errorf("%w: %d answers for %d follow-up questions",
			domain.ErrValidation, len(answers), len(s.PendingFollowups))
	}
	pending := append([]domain.Followup{}, s.PendingFollowups...)
	for i, a := range answers {
		pending[i].Answer = a
	}
	s.PendingFollowups = pending
	touch(s)
	return nil
}

// SaveAndContinue writes the follow-up answers onto the last exchange,
// moves to the next subprocess and, unless the interview is complete,
// requests its question.
func (w *Workflow) SaveAndContinue(ctx context.Context, s *domain.DiscoverySession) error {
	if s.State != domain.StateAwaitingFollowupAnswers {
		return invalidState("save and continue", s)
	}
	ref, err := s.Transcript.Last()
	if err != nil {
		return err
	}
	if err := s.Transcript.ReplaceFollowups(ref, s.PendingFollowups); err != nil {
		return err
	}
	touch(s)

	w.advance(s)
	if s.State == domain.StateCompleted {
		return nil
	}
	return w.AdvanceQuestion(ctx, s)
}

// ReviseSummary regenerates the summary with the user's correction. It is
// allowed in every state and does not change it.
func (w *Workflow) ReviseSummary(ctx context.Context, s *domain.DiscoverySession, correction string) error {
	if strings.TrimSpace(correction) == "" {
		return fmt.Errorf("%w: correction cannot be empty", domain.ErrValidation)
	}
	revised, err := w.advisor.ReviseUnderstanding(ctx, s.Understanding, correction)
	if err != nil {
		return err
	}
	s.Understanding = revised
	touch(s)
	return nil
}

// GenerateRecommendation builds the recommendation from the transcript so far.
func (w *Workflow) GenerateRecommendation(ctx context.Context, s *domain.DiscoverySession) error {
	rec, err := w.advisor.GenerateRecommendation(ctx, &s.Transcript)
	if err != nil {
		return err
	}
	s.Recommendation = rec
	touch(s)
	return nil
}

// ReviseRecommendation regenerates the recommendation with the user's correction.
func (w *Workflow) ReviseRecommendation(ctx context.Context, s *domain.DiscoverySession, correction string) error {
	if strings.TrimSpace(correction) == "" {
		return fmt.Errorf("%w: correction cannot be empty", domain.ErrValidation)
	}
	revised, err := w.advisor.ReviseRecommendation(ctx, s.Recommendation, correction)
	if err != nil {
		return err
	}
	s.Recommendation = revised
	touch(s)
	return nil
}

// UpdateChoices overlays choices on the session's own copy. The reference
// context loaded at start is kept.
func (w *Workflow) UpdateChoices(s *domain.DiscoverySession, choices map[string]string) {
	s.Choices = s.Choices.Merge(choices)
	touch(s)
}
