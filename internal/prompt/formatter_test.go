package prompt

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

func TestUnderstandingMatchesHistoryLayout(t *testing.T) {
	f := MustNew()

	got := f.Understanding("Q1: q\nA1: a")
	want := "You are a SAP consultant. Based on this conversation history, summarize the user's current sourcing process:\n\n" +
		"Q1: q\nA1: a\n\n" +
		"Give a summary of the user's current process understanding in bullet points."
	assert.Equal(t, want, got)
}

func TestUnderstandingRevision(t *testing.T) {
	f := MustNew()

	got := f.UnderstandingRevision("- manual RFQs", "We also use e-auctions {history}")
	want := "You are a SAP consultant. Here is the current summary of the user's sourcing process:\n\n" +
		"- manual RFQs\n\n" +
		"The user has provided the following correction or addition:\n" +
		"We also use e-auctions {history}\n\n" +
		"Please regenerate a revised and corrected process understanding summary, integrating the user's input clearly and accurately, in bullet points."
	assert.Equal(t, want, got)
}

func TestRecommendationIncludesBoilerplateAndHistory(t *testing.T) {
	f := MustNew()

	got := f.Recommendation("Q1: q\nA1: a")
	assert.True(t, strings.HasPrefix(got, "You are a senior SAP Ariba consultant in a BBP discovery session."))
	assert.Contains(t, got, "Key Instructions:")
	assert.Contains(t, got, "Formatting Instructions:")
	assert.True(t, strings.HasSuffix(got, "Here is the discovery Q&A:\nQ1: q\nA1: a"))

	rev := f.RecommendationRevision("## Event setup", "add approval flow")
	assert.Contains(t, rev, "## Event setup")
	assert.Contains(t, rev, "correction or addition:\nadd approval flow")
}

func TestSuggestedQuestionIsDeterministic(t *testing.T) {
	f := MustNew()
	in := QuestionInput{
		Choices:      domain.DefaultUserChoices(),
		RAGContext:   "Sourcing events are created from templates.",
		History:      "Q1: q\nA1: a",
		Subprocess:   "Sourcing Event Setup",
		ProbingFocus: "approval steps",
	}

	first := f.SuggestedQuestion(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.SuggestedQuestion(in))
	}
	assert.Contains(t, first, "# CLIENT PROFILE")
	assert.Contains(t, first, "```yaml\ncompany_size: Large")
	assert.Contains(t, first, "Current sub-process: Sourcing Event Setup")
	assert.Contains(t, first, "approval steps")
	assert.Contains(t, first, "Q1: q\nA1: a")
}

func TestEmptySectionsAreDropped(t *testing.T) {
	f := MustNew()

	got := f.SuggestedQuestion(QuestionInput{Subprocess: "Award"})
	assert.NotContains(t, got, "# CONVERSATION HISTORY")
	assert.NotContains(t, got, "# REFERENCE CONTEXT")
	assert.NotContains(t, got, "# CLIENT PROFILE")
	assert.Contains(t, got, `"Award"`)
}

func TestFollowupsAndProbingFocus(t *testing.T) {
	f := MustNew()

	got := f.Followups(FollowupInput{Question: "How do you run RFQs?", Answer: "By email"})
	assert.Contains(t, got, "Question: How do you run RFQs?")
	assert.Contains(t, got, "Answer: By email")

	focus := f.ProbingFocus("Supplier Selection", domain.UserChoices{"industry": "Energy"})
	assert.Contains(t, focus, "Sub-process: Supplier Selection")
	assert.Contains(t, focus, "industry: Energy")

	sub := f.Subprocesses(nil, "Event creation, bidding, award.")
	assert.Contains(t, sub, "Event creation, bidding, award.")
}

func TestLoadOverridesSomeTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		UnderstandingTemplate: &fstest.MapFile{Data: []byte("- only:\n    plain: true\n    text: \"Summarize: {history}\"\n")},
	}
	f, err := Load(fsys)
	require.NoError(t, err)

	assert.Equal(t, "Summarize: Q1: x", f.Understanding("Q1: x"))
	assert.Contains(t, f.Recommendation("h"), "Key Instructions:")
}

func TestParseTemplateErrors(t *testing.T) {
	_, err := ParseTemplate([]byte("key: value"))
	assert.Error(t, err)

	_, err = ParseTemplate([]byte("- a: [1, 2]"))
	assert.Error(t, err)

	_, err = ParseTemplate([]byte("[]"))
	assert.Error(t, err)
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	tmpl := Template{{Name: "x", Plain: true, Text: "{known} and {unknown}"}}
	assert.Equal(t, "yes and {unknown}", tmpl.Render(map[string]string{"known": "yes"}))
}
