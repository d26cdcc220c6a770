package discovery

import (
	"context"
	"log/slog"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// SubprocessSource produces the ordered subprocess list for a new session.
type SubprocessSource interface {
	Subprocesses(ctx context.Context, choices domain.UserChoices) ([]string, error)
}

// ContextSource produces the reference context for a new session.
type ContextSource interface {
	Context(ctx context.Context, choices domain.UserChoices) (string, error)
}

// SubprocessFunc adapts a function to SubprocessSource.
type SubprocessFunc func(ctx context.Context, choices domain.UserChoices) ([]string, error)

// Subprocesses calls f.
func (f SubprocessFunc) Subprocesses(ctx context.Context, choices domain.UserChoices) ([]string, error) {
	return f(ctx, choices)
}

// StaticSubprocesses always returns the same list.
type StaticSubprocesses []string

// Subprocesses returns a copy of the list.
func (s StaticSubprocesses) Subprocesses(context.Context, domain.UserChoices) ([]string, error) {
	return append([]string(nil), s...), nil
}

// StaticContext always returns the same text.
type StaticContext string

// Context returns the text.
func (s StaticContext) Context(context.Context, domain.UserChoices) (string, error) {
	return string(s), nil
}

// SubprocessExtractor asks the generation backend for a subprocess list.
type SubprocessExtractor interface {
	ExtractSubprocesses(ctx context.Context, choices domain.UserChoices, reference string) ([]string, error)
}

// ReferenceText supplies the full reference material.
type ReferenceText interface {
	Text(ctx context.Context) (string, error)
}

// GeneratedSubprocesses extracts the list from the reference material. It
// yields nothing when there is no reference material.
type GeneratedSubprocesses struct {
	Extractor SubprocessExtractor
	Reference ReferenceText
}

// Subprocesses implements SubprocessSource.
func (g GeneratedSubprocesses) Subprocesses(ctx context.Context, choices domain.UserChoices) ([]string, error) {
	text, err := g.Reference.Text(ctx)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return g.Extractor.ExtractSubprocesses(ctx, choices, text)
}

// FallbackSubprocesses tries each source in order and returns the first
// non-empty list. Failures are logged and skipped. Default is returned
// when every source comes up empty.
type FallbackSubprocesses struct {
	Sources []SubprocessSource
	Default []string
	Logger  *slog.Logger
}

// Subprocesses implements SubprocessSource.
func (f FallbackSubprocesses) Subprocesses(ctx context.Context, choices domain.UserChoices) ([]string, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for i, src := range f.Sources {
		list, err := src.Subprocesses(ctx, choices)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Subprocess source failed, trying next", "source", i, "error", err)
			continue
		}
		if len(list) > 0 {
			return list, nil
		}
	}
	return append([]string(nil), f.Default...), nil
}
