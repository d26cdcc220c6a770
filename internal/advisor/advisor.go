// Package advisor builds prompts for each discovery use case and calls the
// generation gateway. Every failure is returned as a *generation.Error.
package advisor

import (
	"context"
	"strings"

	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/prompt"
)

// DefaultMaxFollowups caps follow-up questions per main answer.
const DefaultMaxFollowups = 10

// Advisor turns discovery state into generated text.
type Advisor struct {
	gen          generation.Generator
	prompts      *prompt.Formatter
	maxFollowups int
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithMaxFollowups overrides DefaultMaxFollowups. n <= 0 keeps the default.
func WithMaxFollowups(n int) Option {
	return func(a *Advisor) {
		if n > 0 {
			a.maxFollowups = n
		}
	}
}

// New returns an Advisor. A nil formatter uses the built-in templates.
func New(gen generation.Generator, prompts *prompt.Formatter, opts ...Option) *Advisor {
	if prompts == nil {
		prompts = prompt.MustNew()
	}
	a := &Advisor{gen: gen, prompts: prompts, maxFollowups: DefaultMaxFollowups}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// QuestionRequest is the input of SuggestQuestions.
type QuestionRequest struct {
	Choices    domain.UserChoices
	RAGContext string
	Transcript *domain.Transcript
	Subprocess string
}

func (a *Advisor) generate(ctx context.Context, op, text string) (string, error) {
	out, err := a.gen.Generate(generation.WithOperation(ctx, op), text)
	if err != nil {
		return "", generation.NewError(err)
	}
	return strings.TrimSpace(out), nil
}

// ProbingFocus asks which aspects of subprocess the next question should target.
func (a *Advisor) ProbingFocus(ctx context.Context, subprocess string, choices domain.UserChoices) (string, error) {
	return a.generate(ctx, generation.OpProbingFocus, a.prompts.ProbingFocus(subprocess, choices))
}

// SuggestQuestions returns the ordered candidate questions for a subprocess.
// The probing focus is computed once per call.
func (a *Advisor) SuggestQuestions(ctx context.Context, req QuestionRequest) ([]string, error) {
	focus, err := a.ProbingFocus(ctx, req.Subprocess, req.Choices)
	if err != nil {
		return nil, err
	}

	text := a.prompts.SuggestedQuestion(prompt.QuestionInput{
		Choices:      req.Choices,
		RAGContext:   req.RAGContext,
		History:      render(req.Transcript),
		Subprocess:   req.Subprocess,
		ProbingFocus: focus,
	})
	raw, err := a.generate(ctx, generation.OpSuggestedQuestion, text)
	if err != nil {
		return nil, err
	}
	return generation.ParseQuestions(raw), nil
}

// GenerateFollowups returns follow-up questions, with empty answers, for a
// main question/answer pair. At most the configured maximum is kept.
func (a *Advisor) GenerateFollowups(ctx context.Context, question, answer, ragContext string, t *domain.Transcript) ([]domain.Followup, error) {
	text := a.prompts.Followups(prompt.FollowupInput{
		Question:   question,
		Answer:     answer,
		RAGContext: ragContext,
		History:    render(t),
	})
	raw, err := a.generate(ctx, generation.OpFollowups, text)
	if err != nil {
		return nil, err
	}

	questions := generation.ParseQuestions(raw)
	if len(questions) > a.maxFollowups {
		questions = questions[:a.maxFollowups]
	}
	followups := make([]domain.Followup, len(questions))
	for i, q := range questions {
		followups[i] = domain.Followup{Question: q}
	}
	return followups, nil
}

// ExtractSubprocesses asks for the ordered subprocess list given reference text.
func (a *Advisor) ExtractSubprocesses(ctx context.Context, choices domain.UserChoices, reference string) ([]string, error) {
	raw, err := a.generate(ctx, generation.OpSubprocesses, a.prompts.Subprocesses(choices, reference))
	if err != nil {
		return nil, err
	}
	names := generation.ParseQuestions(raw)
	if len(names) == 0 {
		return nil, &generation.Error{Message: "generation returned no subprocesses"}
	}
	return dedupe(names), nil
}

// GenerateUnderstanding summarizes the as-is process from the transcript.
func (a *Advisor) GenerateUnderstanding(ctx context.Context, t *domain.Transcript) (string, error) {
	return a.generate(ctx, generation.OpUnderstanding, a.prompts.Understanding(render(t)))
}

// ReviseUnderstanding regenerates the summary with the user's correction applied.
func (a *Advisor) ReviseUnderstanding(ctx context.Context, current, correction string) (string, error) {
	return a.generate(ctx, generation.OpUnderstandingRevision, a.prompts.UnderstandingRevision(current, correction))
}

// GenerateRecommendation builds the process recommendation from the transcript.
func (a *Advisor) GenerateRecommendation(ctx context.Context, t *domain.Transcript) (string, error) {
	return a.generate(ctx, generation.OpRecommendation, a.prompts.Recommendation(render(t)))
}

// ReviseRecommendation regenerates the recommendation with the user's correction applied.
func (a *Advisor) ReviseRecommendation(ctx context.Context, current, correction string) (string, error) {
	return a.generate(ctx, generation.OpRecommendationRevision, a.prompts.RecommendationRevision(current, correction))
}

func render(t *domain.Transcript) string {
	if t == nil {
		return ""
	}
	return t.Render()
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

