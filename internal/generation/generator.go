// Package generation is the narrow gateway to the external text-generation backend.
package generation

import (
	"context"
	"errors"
	"strings"
)

// Generator turns a prompt into generated text.
// Implementations make a single attempt: no retry, no backoff, no partial results.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Error is the single failure type of the gateway. It carries a message only;
// the cause is kept for logging and errors.Is checks.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a *Error. An err that already is one is returned unchanged.
func NewError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	return &Error{Message: err.Error(), Err: err}
}

// IsError reports whether err is a gateway failure.
func IsError(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr)
}

// ParseQuestions splits generated text into candidate questions: one per line,
// leading bullet markers and surrounding whitespace removed, empty lines dropped.
func ParseQuestions(raw string) []string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	questions := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(line, "-•* \t"))
		if line == "" {
			continue
		}
		questions = append(questions, line)
	}
	return questions
}

type ctxKey int

const (
	sessionKey ctxKey = iota
	operationKey
)

// Operation names label generation calls in logs and metrics.
const (
	OpSuggestedQuestion      = "suggested_question"
	OpFollowups              = "followups"
	OpProbingFocus           = "probing_focus"
	OpSubprocesses           = "subprocesses"
	OpUnderstanding          = "understanding"
	OpUnderstandingRevision  = "understanding_revision"
	OpRecommendation         = "recommendation"
	OpRecommendationRevision = "recommendation_revision"
)

// WithSession tags ctx with the discovery session a call belongs to.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionFrom returns the session tag, or "".
func SessionFrom(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey).(string)
	return v
}

// WithOperation tags ctx with the kind of prompt being sent.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// OperationFrom returns the operation tag, or "unknown".
func OperationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
