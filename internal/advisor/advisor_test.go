package advisor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/generation/generationtest"
)

func TestSuggestQuestionsComputesProbingFocusOnce(t *testing.T) {
	fake := generationtest.New().
		On(generation.OpProbingFocus, generationtest.Text("approval workflows")).
		On(generation.OpSuggestedQuestion, generationtest.Text("- What is your current RFQ process?\n- Who creates events?"))
	a := New(fake, nil)

	var tr domain.Transcript
	tr.AppendExchange("Earlier?", "Yes")
	got, err := a.SuggestQuestions(context.Background(), QuestionRequest{
		Choices:    domain.DefaultUserChoices(),
		RAGContext: "ctx",
		Transcript: &tr,
		Subprocess: "Sourcing Event Setup",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"What is your current RFQ process?", "Who creates events?"}, got)
	assert.Len(t, fake.CallsFor(generation.OpProbingFocus), 1)
	calls := fake.CallsFor(generation.OpSuggestedQuestion)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "approval workflows")
	assert.Contains(t, calls[0].Prompt, "Q1: Earlier?")
}

func TestSuggestQuestionsFailure(t *testing.T) {
	fake := generationtest.New().
		On(generation.OpProbingFocus, generationtest.Text("focus")).
		On(generation.OpSuggestedQuestion, generationtest.Reply{Err: fmt.Errorf("connection reset")})
	a := New(fake, nil)

	_, err := a.SuggestQuestions(context.Background(), QuestionRequest{Subprocess: "Award"})
	require.Error(t, err)
	assert.True(t, generation.IsError(err))
	assert.Equal(t, "connection reset", err.Error())
}

func TestGenerateFollowupsCapsAndClearsAnswers(t *testing.T) {
	lines := make([]string, 15)
	for i := range lines {
		lines[i] = fmt.Sprintf("- Follow-up %d?", i+1)
	}
	fake := generationtest.New().On(generation.OpFollowups, generationtest.Text(strings.Join(lines, "\n")))
	a := New(fake, nil)

	got, err := a.GenerateFollowups(context.Background(), "How?", "By email", "", nil)
	require.NoError(t, err)
	require.Len(t, got, DefaultMaxFollowups)
	assert.Equal(t, domain.Followup{Question: "Follow-up 1?"}, got[0])

	a = New(fake, nil, WithMaxFollowups(2))
	got, err = a.GenerateFollowups(context.Background(), "How?", "By email", "", nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUnderstandingAndRecommendationAreTrimmed(t *testing.T) {
	fake := generationtest.New().
		On(generation.OpUnderstanding, generationtest.Text("\n- manual RFQs\n\n")).
		On(generation.OpUnderstandingRevision, generationtest.Text(" - revised ")).
		On(generation.OpRecommendation, generationtest.Text("## Design\n")).
		On(generation.OpRecommendationRevision, generationtest.Text("## Design v2"))
	a := New(fake, nil)
	ctx := context.Background()

	var tr domain.Transcript
	tr.AppendExchange("q", "a")

	s, err := a.GenerateUnderstanding(ctx, &tr)
	require.NoError(t, err)
	assert.Equal(t, "- manual RFQs", s)

	s, err = a.ReviseUnderstanding(ctx, "- manual RFQs", "we use auctions")
	require.NoError(t, err)
	assert.Equal(t, "- revised", s)

	s, err = a.GenerateRecommendation(ctx, &tr)
	require.NoError(t, err)
	assert.Equal(t, "## Design", s)

	s, err = a.ReviseRecommendation(ctx, "## Design", "add approvals")
	require.NoError(t, err)
	assert.Equal(t, "## Design v2", s)

	rev := fake.CallsFor(generation.OpUnderstandingRevision)
	require.Len(t, rev, 1)
	assert.Contains(t, rev[0].Prompt, "we use auctions")
}

func TestRevisionsAreNotCached(t *testing.T) {
	fake := generationtest.New().On(generation.OpUnderstandingRevision, generationtest.Text("one"), generationtest.Text("two"))
	a := New(fake, nil)

	first, err := a.ReviseUnderstanding(context.Background(), "cur", "fix")
	require.NoError(t, err)
	second, err := a.ReviseUnderstanding(context.Background(), "cur", "fix")
	require.NoError(t, err)

	assert.Equal(t, "one", first)
	assert.Equal(t, "two", second)
	assert.Len(t, fake.CallsFor(generation.OpUnderstandingRevision), 2)
}

func TestExtractSubprocesses(t *testing.T) {
	fake := generationtest.New().On(generation.OpSubprocesses,
		generationtest.Text("- Event Creation\n- Supplier Invitation\n- event creation\n"),
		generationtest.Text("\n"))
	a := New(fake, nil)

	got, err := a.ExtractSubprocesses(context.Background(), nil, "ref")
	require.NoError(t, err)
	assert.Equal(t, []string{"Event Creation", "Supplier Invitation"}, got)

	_, err = a.ExtractSubprocesses(context.Background(), nil, "ref")
	assert.True(t, generation.IsError(err))
}
