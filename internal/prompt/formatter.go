// Package prompt renders discovery state into prompt text for the generation backend.
// Rendering is pure: identical inputs always produce byte-identical prompts.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

//go:embed templates/*.yaml
var embedded embed.FS

// Template file names, relative to the templates directory.
const (
	QuestionTemplate               = "question.yaml"
	FollowupsTemplate              = "followups.yaml"
	ProbingFocusTemplate           = "probing_focus.yaml"
	SubprocessesTemplate           = "subprocesses.yaml"
	UnderstandingTemplate          = "understanding.yaml"
	UnderstandingRevisionTemplate  = "understanding_revision.yaml"
	RecommendationTemplate         = "recommendation.yaml"
	RecommendationRevisionTemplate = "recommendation_revision.yaml"
)

var templateNames = []string{
	QuestionTemplate,
	FollowupsTemplate,
	ProbingFocusTemplate,
	SubprocessesTemplate,
	UnderstandingTemplate,
	UnderstandingRevisionTemplate,
	RecommendationTemplate,
	RecommendationRevisionTemplate,
}

// Formatter holds the parsed prompt templates.
type Formatter struct {
	templates map[string]Template
}

// QuestionInput is everything the suggested-question prompt draws on.
type QuestionInput struct {
	Choices      domain.UserChoices
	RAGContext   string
	History      string
	Subprocess   string
	ProbingFocus string
}

// FollowupInput is everything the follow-up prompt draws on.
type FollowupInput struct {
	Question   string
	Answer     string
	RAGContext string
	History    string
}

// New returns a Formatter over the built-in templates.
func New() (*Formatter, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load parses templates from fsys. Files missing from fsys fall back to the
// built-in version, so a directory may override only some prompts.
func Load(fsys fs.FS) (*Formatter, error) {
	f := &Formatter{templates: make(map[string]Template, len(templateNames))}
	for _, name := range templateNames {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			data, err = embedded.ReadFile("templates/" + name)
			if err != nil {
				return nil, fmt.Errorf("read prompt template %s: %w", name, err)
			}
		}
		tmpl, err := ParseTemplate(data)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		f.templates[name] = tmpl
	}
	return f, nil
}

// MustNew is New for package-level defaults and tests.
func MustNew() *Formatter {
	f, err := New()
	if err != nil {
		panic(err)
	}
	return f
}

// SuggestedQuestion renders the prompt asking for the next discovery question.
func (f *Formatter) SuggestedQuestion(in QuestionInput) string {
	return f.templates[QuestionTemplate].Render(map[string]string{
		"choices":       renderChoices(in.Choices),
		"rag_context":   in.RAGContext,
		"history":       in.History,
		"subprocess":    in.Subprocess,
		"probing_focus": in.ProbingFocus,
	})
}

// Followups renders the prompt asking for follow-up questions to a main answer.
func (f *Formatter) Followups(in FollowupInput) string {
	return f.templates[FollowupsTemplate].Render(map[string]string{
		"question":    in.Question,
		"answer":      in.Answer,
		"rag_context": in.RAGContext,
		"history":     in.History,
	})
}

// ProbingFocus renders the prompt asking which aspects of a subprocess to probe.
func (f *Formatter) ProbingFocus(subprocess string, choices domain.UserChoices) string {
	return f.templates[ProbingFocusTemplate].Render(map[string]string{
		"subprocess": subprocess,
		"choices":    renderChoices(choices),
	})
}

// Subprocesses renders the prompt asking for the ordered subprocess list.
func (f *Formatter) Subprocesses(choices domain.UserChoices, reference string) string {
	return f.templates[SubprocessesTemplate].Render(map[string]string{
		"choices":   renderChoices(choices),
		"reference": reference,
	})
}

// Understanding renders the as-is summary prompt for a rendered transcript.
func (f *Formatter) Understanding(history string) string {
	return f.templates[UnderstandingTemplate].Render(map[string]string{"history": history})
}

// UnderstandingRevision renders the summary revision prompt.
func (f *Formatter) UnderstandingRevision(current, correction string) string {
	return f.templates[UnderstandingRevisionTemplate].Render(map[string]string{
		"current":    current,
		"correction": correction,
	})
}

// Recommendation renders the process recommendation prompt.
func (f *Formatter) Recommendation(history string) string {
	return f.templates[RecommendationTemplate].Render(map[string]string{"history": history})
}

// RecommendationRevision renders the recommendation revision prompt.
func (f *Formatter) RecommendationRevision(current, correction string) string {
	return f.templates[RecommendationRevisionTemplate].Render(map[string]string{
		"current":    current,
		"correction": correction,
	})
}

// renderChoices writes choices as a YAML mapping. yaml.v3 sorts map keys.
func renderChoices(choices domain.UserChoices) string {
	if len(choices) == 0 {
		return ""
	}
	out, err := yaml.Marshal(map[string]string(choices))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
