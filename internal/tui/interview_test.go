package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/advisor"
	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/generation/generationtest"
	"github.com/ashureev/bbp-discovery/internal/store"
)

func newTestService(t *testing.T, fake *generationtest.Fake) *discovery.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(t.Name()))
	repo, err := store.NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc, err := discovery.NewService(discovery.ServiceConfig{
		Repository:   repo,
		Workflow:     discovery.NewWorkflow(advisor.New(fake, nil), 1, nil),
		Subprocesses: discovery.StaticSubprocesses{"Sourcing Event Setup"},
		Context:      discovery.StaticContext("reference"),
	})
	require.NoError(t, err)
	return svc
}

// drain executes cmd and feeds the session results back into m. Timer
// driven messages are dropped so tests never sleep.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			drain(t, m, c)
		}
	case sessionMsg, exportedMsg:
		_, next := m.Update(msg)
		drain(t, m, next)
	}
}

func press(t *testing.T, m *Model, key tea.KeyType) {
	t.Helper()
	_, cmd := m.Update(tea.KeyMsg{Type: key})
	drain(t, m, cmd)
}

func fullFake() *generationtest.Fake {
	return generationtest.New().
		On(generation.OpSuggestedQuestion, generationtest.Text("What is your current RFQ process?")).
		On(generation.OpFollowups, generationtest.Text("Who approves RFQs?\nHow long does approval take?")).
		On(generation.OpUnderstanding, generationtest.Text("Summary v1")).
		On(generation.OpUnderstandingRevision, generationtest.Text("Summary v2")).
		On(generation.OpRecommendation, generationtest.Text("Adopt guided sourcing"))
}

func TestInterviewWalkthrough(t *testing.T) {
	fake := fullFake()
	out := filepath.Join(t.TempDir(), "bbp.md")
	m := New(context.Background(), newTestService(t, fake), Options{SessionID: "cli", ExportPath: out})

	drain(t, m, m.Init())
	require.NotNil(t, m.Session())
	assert.Equal(t, modeAnswer, m.mode)
	assert.Contains(t, m.View(), "What is your current RFQ process?")
	assert.Contains(t, m.View(), "Sub-process 1/1: Sourcing Event Setup")

	m.input.SetValue("Manual email-based RFQs")
	press(t, m, tea.KeyCtrlS)
	require.Equal(t, domain.StateAwaitingFollowupAnswers, m.Session().State)
	assert.Equal(t, modeFollowup, m.mode)
	require.Len(t, m.answers, 2)
	assert.Contains(t, m.View(), "Follow-up 1/2: Who approves RFQs?")

	m.input.SetValue("Procurement Manager")
	press(t, m, tea.KeyCtrlS)
	assert.Equal(t, 1, m.followup)
	assert.Contains(t, m.View(), "Follow-up 2/2")

	m.input.SetValue("Two days")
	press(t, m, tea.KeyCtrlS)
	require.Equal(t, domain.StateCompleted, m.Session().State)
	assert.Equal(t, modeIdle, m.mode)
	assert.Contains(t, m.View(), "All sub-processes covered.")

	ex := m.Session().Transcript.Exchanges()
	require.Len(t, ex, 1)
	assert.Equal(t, "Procurement Manager", ex[0].Followups[0].Answer)
	assert.Equal(t, "Two days", ex[0].Followups[1].Answer)

	press(t, m, tea.KeyCtrlR)
	assert.Equal(t, "Adopt guided sourcing", m.Session().Recommendation)
	assert.Contains(t, m.View(), "Process recommendation")

	press(t, m, tea.KeyCtrlE)
	assert.Contains(t, m.notice, out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Adopt guided sourcing")
}

func TestInterviewSaveAndContinueEarly(t *testing.T) {
	m := New(context.Background(), newTestService(t, fullFake()), Options{SessionID: "cli"})
	drain(t, m, m.Init())

	m.input.SetValue("Manual email-based RFQs")
	press(t, m, tea.KeyCtrlS)
	m.input.SetValue("Procurement Manager")
	press(t, m, tea.KeyCtrlN)

	require.Equal(t, domain.StateCompleted, m.Session().State)
	ex := m.Session().Transcript.Exchanges()
	assert.Equal(t, "Procurement Manager", ex[0].Followups[0].Answer)
	assert.Empty(t, ex[0].Followups[1].Answer)
}

func TestInterviewSummaryCorrectionKeepsFollowupProgress(t *testing.T) {
	fake := fullFake()
	m := New(context.Background(), newTestService(t, fake), Options{SessionID: "cli"})
	drain(t, m, m.Init())

	m.input.SetValue("Manual email-based RFQs")
	press(t, m, tea.KeyCtrlS)
	m.input.SetValue("Procurement Manager")
	press(t, m, tea.KeyCtrlS)
	require.Equal(t, 1, m.followup)

	press(t, m, tea.KeyCtrlU)
	assert.Equal(t, modeSummaryCorrection, m.mode)
	m.input.SetValue("Approvals go to the CFO")
	press(t, m, tea.KeyCtrlS)

	assert.Equal(t, "Summary v2", m.Session().Understanding)
	assert.Equal(t, modeFollowup, m.mode)
	assert.Equal(t, 1, m.followup)
	assert.Equal(t, "Procurement Manager", m.answers[0])
	require.Len(t, fake.CallsFor(generation.OpUnderstandingRevision), 1)
	assert.Contains(t, fake.CallsFor(generation.OpUnderstandingRevision)[0].Prompt, "Approvals go to the CFO")
}

func TestInterviewEscCancelsCorrection(t *testing.T) {
	m := New(context.Background(), newTestService(t, fullFake()), Options{SessionID: "cli"})
	drain(t, m, m.Init())
	m.input.SetValue("Manual email-based RFQs")
	press(t, m, tea.KeyCtrlS)

	press(t, m, tea.KeyCtrlU)
	require.Equal(t, modeSummaryCorrection, m.mode)
	press(t, m, tea.KeyEsc)
	assert.Equal(t, modeFollowup, m.mode)
}

func TestInterviewQuestionFailureShowsBannerAndRetries(t *testing.T) {
	fake := generationtest.New().
		On(generation.OpSuggestedQuestion, generationtest.Fail("backend down"), generationtest.Text("Q1"))
	m := New(context.Background(), newTestService(t, fake), Options{SessionID: "cli"})

	drain(t, m, m.Init())
	require.Error(t, m.err)
	require.NotNil(t, m.Session())
	assert.Equal(t, domain.StateAwaitingQuestion, m.Session().State)
	assert.Contains(t, m.View(), "backend down")
	assert.Contains(t, m.View(), "Press ctrl+s to ask again")

	press(t, m, tea.KeyCtrlS)
	assert.NoError(t, m.err)
	assert.Equal(t, "Q1", m.Session().CurrentQuestion)
	assert.Equal(t, modeAnswer, m.mode)
}

func TestInterviewBlankAnswerIsNotSubmitted(t *testing.T) {
	fake := fullFake()
	m := New(context.Background(), newTestService(t, fake), Options{SessionID: "cli"})
	drain(t, m, m.Init())

	m.input.SetValue("   ")
	press(t, m, tea.KeyCtrlS)
	assert.Equal(t, "Answer cannot be empty", m.notice)
	assert.Equal(t, domain.StateAwaitingMainAnswer, m.Session().State)
	assert.Empty(t, fake.CallsFor(generation.OpFollowups))
}

func TestInterviewKeysIgnoredWhileBusy(t *testing.T) {
	m := New(context.Background(), newTestService(t, fullFake()), Options{SessionID: "cli"})
	_ = m.Init()
	require.True(t, m.busy)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Preparing the interview")
}

func TestInterviewQuit(t *testing.T) {
	m := New(context.Background(), newTestService(t, fullFake()), Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestInterviewExportWithoutPath(t *testing.T) {
	m := New(context.Background(), newTestService(t, fullFake()), Options{SessionID: "cli"})
	drain(t, m, m.Init())
	press(t, m, tea.KeyCtrlE)
	assert.Contains(t, m.notice, "--out")
}
