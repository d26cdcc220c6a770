package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRender(t *testing.T) {
	var tr Transcript
	assert.Equal(t, "", tr.Render())

	ref := tr.AppendExchange("How do you source?", "Via RFQ")
	require.NoError(t, tr.AppendFollowup(ref, "Who approves?", "Manager"))
	tr.AppendExchange("Second?", "Yes")

	want := "Q1: How do you source?\n" +
		"A1: Via RFQ\n" +
		"  ↳ Follow-up 1: Who approves?\n" +
		"     Answer: Manager\n" +
		"Q2: Second?\n" +
		"A2: Yes"
	assert.Equal(t, want, tr.Render())
}

func TestTranscriptExchangesAreCopies(t *testing.T) {
	var tr Transcript
	ref := tr.AppendExchange("q", "a")
	require.NoError(t, tr.AppendFollowup(ref, "f1", ""))

	snapshot := tr.Exchanges()
	require.NoError(t, tr.SetFollowupAnswer(ref, 0, "filled"))

	assert.Equal(t, "", snapshot[0].Followups[0].Answer)
	got, err := tr.Exchange(ref)
	require.NoError(t, err)
	assert.Equal(t, "filled", got.Followups[0].Answer)
}

func TestTranscriptNotFound(t *testing.T) {
	var tr Transcript
	_, err := tr.Last()
	assert.ErrorIs(t, err, ErrNotFound)

	err = tr.AppendFollowup(0, "q", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	ref := tr.AppendExchange("q", "a")
	err = tr.SetFollowupAnswer(ref, 3, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tr.Exchange(ExchangeRef(5))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranscriptReplaceFollowups(t *testing.T) {
	var tr Transcript
	ref := tr.AppendExchange("q", "a")
	in := []Followup{{Question: "one"}, {Question: "two"}}
	require.NoError(t, tr.ReplaceFollowups(ref, in))
	in[0].Question = "mutated"

	got, err := tr.Exchange(ref)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Followups[0].Question)
	assert.Len(t, got.Followups, 2)
}

func TestTranscriptJSON(t *testing.T) {
	var empty Transcript
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	tr := NewTranscript([]Exchange{{Question: "q", Answer: "a"}})
	data, err = json.Marshal(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"question":"q","answer":"a","followups":[]}]`, string(data))

	var back Transcript
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tr.Render(), back.Render())
}

func TestUserChoicesMerge(t *testing.T) {
	base := DefaultUserChoices()
	merged := base.Merge(map[string]string{"industry": "Retail", " ": "ignored", "activity": "RFQ"})

	assert.Equal(t, "Energy", base[ChoiceIndustry])
	assert.Equal(t, "Retail", merged[ChoiceIndustry])
	assert.Equal(t, "RFQ", merged[ChoiceActivity])
	assert.NotContains(t, merged, " ")
	assert.Equal(t, []string{"a", "b"}, UserChoices{"z": "b", "a": "a", "m": ""}.Values())
}

func TestDiscoverySessionCursor(t *testing.T) {
	s := NewDiscoverySession("s1", []string{"Event Creation", "Supplier Selection"}, DefaultUserChoices(), "")
	assert.Equal(t, StateAwaitingQuestion, s.State)
	assert.Equal(t, "Event Creation", s.CurrentSubprocess())
	s.Cursor = 2
	assert.Equal(t, "", s.CurrentSubprocess())
	assert.True(t, StateCompleted.Valid())
	assert.False(t, WorkflowState("bogus").Valid())
}
