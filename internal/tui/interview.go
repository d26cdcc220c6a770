// Package tui is a terminal front end for a discovery session. It drives
// the same session operations as the HTTP API, in process.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/bbp-discovery/internal/discovery"
	"github.com/ashureev/bbp-discovery/internal/domain"
)

// Driver runs session operations. *discovery.Service satisfies it.
type Driver interface {
	Start(ctx context.Context, id string, overrides map[string]string) (*domain.DiscoverySession, error)
	RetryQuestion(ctx context.Context, id string) (*domain.DiscoverySession, error)
	SubmitAnswer(ctx context.Context, id, answer string) (*domain.DiscoverySession, error)
	SetFollowups(ctx context.Context, id string, answers []string) (*domain.DiscoverySession, error)
	Continue(ctx context.Context, id string) (*domain.DiscoverySession, error)
	ReviseSummary(ctx context.Context, id, correction string) (*domain.DiscoverySession, error)
	Recommend(ctx context.Context, id string) (*domain.DiscoverySession, error)
	ReviseRecommendation(ctx context.Context, id, correction string) (*domain.DiscoverySession, error)
}

// inputMode says what the text area is collecting.
type inputMode int

const (
	modeAnswer inputMode = iota
	modeFollowup
	modeSummaryCorrection
	modeRecommendationCorrection
	modeIdle
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#0A6ED1")).Padding(0, 1)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	questionStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 0)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#C0392B")).Padding(0, 1)
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	sectionStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// sessionMsg carries the result of a Driver call.
type sessionMsg struct {
	session *domain.DiscoverySession
	err     error
}

type exportedMsg struct {
	path string
	err  error
}

// Model is the bubbletea model for one interview.
type Model struct {
	driver     Driver
	ctx        context.Context
	sessionID  string
	overrides  map[string]string
	exportPath string

	session   *domain.DiscoverySession
	mode      inputMode
	followup  int
	answers   []string
	busy      bool
	err       error
	notice    string
	width     int
	input     textarea.Model
	spinner   spinner.Model
	diagCount int
}

// Options configures a Model.
type Options struct {
	SessionID  string
	Choices    map[string]string
	ExportPath string
}

// New creates a Model. The session starts when the program calls Init.
func New(ctx context.Context, d Driver, opts Options) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type your answer, ctrl+s to submit"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	ta.CharLimit = 4000
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return &Model{
		driver:     d,
		ctx:        ctx,
		sessionID:  opts.SessionID,
		overrides:  opts.Choices,
		exportPath: opts.ExportPath,
		mode:       modeIdle,
		input:      ta,
		spinner:    sp,
	}
}

// Session returns the latest session state.
func (m *Model) Session() *domain.DiscoverySession {
	return m.session
}

// Init starts the session.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
		return m.driver.Start(ctx, m.sessionID, m.overrides)
	}))
}

// run marks the model busy and performs fn off the update loop.
func (m *Model) run(fn func(ctx context.Context) (*domain.DiscoverySession, error)) tea.Cmd {
	m.busy = true
	m.err = nil
	m.notice = ""
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		s, err := fn(m.ctx)
		return sessionMsg{session: s, err: err}
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(max(20, msg.Width-4))
		return m, nil

	case sessionMsg:
		m.busy = false
		m.err = msg.err
		if msg.session != nil {
			m.apply(msg.session)
		}
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = "Exported to " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true
	case "esc":
		if m.correcting() {
			m.resume()
		}
		return nil, true
	}
	if m.busy || m.session == nil {
		return nil, true
	}

	switch msg.String() {
	case "ctrl+s":
		return m.submit(), true
	case "ctrl+n":
		if m.mode == modeFollowup {
			return m.finishFollowups(), true
		}
		return nil, true
	case "ctrl+u":
		if m.session.Understanding == "" {
			m.notice = "No process understanding to correct yet"
			return nil, true
		}
		m.enterMode(modeSummaryCorrection)
		return nil, true
	case "ctrl+r":
		if m.session.Recommendation == "" {
			return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
				return m.driver.Recommend(ctx, m.sessionID)
			}), true
		}
		m.enterMode(modeRecommendationCorrection)
		return nil, true
	case "ctrl+e":
		return m.export(), true
	}
	return nil, false
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	switch m.mode {
	case modeIdle:
		if m.session.State == domain.StateAwaitingQuestion {
			return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
				return m.driver.RetryQuestion(ctx, m.sessionID)
			})
		}
		return nil
	case modeAnswer:
		if text == "" {
			m.notice = "Answer cannot be empty"
			return nil
		}
		m.input.Reset()
		return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
			return m.driver.SubmitAnswer(ctx, m.sessionID, text)
		})
	case modeFollowup:
		if m.followup >= len(m.answers) {
			return m.finishFollowups()
		}
		m.answers[m.followup] = text
		m.input.Reset()
		m.followup++
		if m.followup >= len(m.answers) {
			return m.finishFollowups()
		}
		m.input.SetValue(m.answers[m.followup])
		return nil
	case modeSummaryCorrection:
		if text == "" {
			return nil
		}
		m.input.Reset()
		return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
			return m.driver.ReviseSummary(ctx, m.sessionID, text)
		})
	case modeRecommendationCorrection:
		if text == "" {
			return nil
		}
		m.input.Reset()
		return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
			return m.driver.ReviseRecommendation(ctx, m.sessionID, text)
		})
	}
	return nil
}

// finishFollowups saves whatever follow-up answers were given and moves on.
func (m *Model) finishFollowups() tea.Cmd {
	if m.followup < len(m.answers) {
		if text := strings.TrimSpace(m.input.Value()); text != "" {
			m.answers[m.followup] = text
		}
	}
	m.input.Reset()
	answers := append([]string(nil), m.answers...)
	return m.run(func(ctx context.Context) (*domain.DiscoverySession, error) {
		if _, err := m.driver.SetFollowups(ctx, m.sessionID, answers); err != nil {
			return nil, err
		}
		return m.driver.Continue(ctx, m.sessionID)
	})
}

func (m *Model) export() tea.Cmd {
	if m.exportPath == "" {
		m.notice = "No export path configured (use --out)"
		return nil
	}
	s, path := m.session, m.exportPath
	return func() tea.Msg {
		err := os.WriteFile(path, []byte(discovery.ExportMarkdown(s)), 0o644)
		return exportedMsg{path: path, err: err}
	}
}

// apply adopts a new session snapshot and resets the input for its state.
func (m *Model) apply(s *domain.DiscoverySession) {
	prev := m.session
	m.session = s
	m.sessionID = s.ID
	if len(s.Diagnostics) > m.diagCount {
		m.notice = s.Diagnostics[len(s.Diagnostics)-1]
	}
	m.diagCount = len(s.Diagnostics)

	// A correction leaves the workflow where it was, follow-up progress included.
	if prev != nil && prev.State == s.State && m.correcting() {
		m.resume()
		return
	}
	m.enterMode(m.modeForState())
}

func (m *Model) correcting() bool {
	return m.mode == modeSummaryCorrection || m.mode == modeRecommendationCorrection
}

func (m *Model) resume() {
	m.mode = m.modeForState()
	m.input.Reset()
	m.input.Placeholder = placeholderFor(m.mode)
	if m.mode == modeFollowup && m.followup < len(m.answers) {
		m.input.SetValue(m.answers[m.followup])
	}
}

func (m *Model) modeForState() inputMode {
	if m.session == nil {
		return modeIdle
	}
	switch m.session.State {
	case domain.StateAwaitingMainAnswer:
		return modeAnswer
	case domain.StateAwaitingFollowupAnswers:
		return modeFollowup
	default:
		return modeIdle
	}
}

func (m *Model) enterMode(mode inputMode) {
	m.mode = mode
	m.input.Reset()
	switch mode {
	case modeFollowup:
		m.followup = 0
		m.answers = make([]string, len(m.session.PendingFollowups))
		for i, f := range m.session.PendingFollowups {
			m.answers[i] = f.Answer
		}
		if len(m.answers) > 0 {
			m.input.SetValue(m.answers[0])
		}
	}
	m.input.Placeholder = placeholderFor(mode)
}

func placeholderFor(mode inputMode) string {
	switch mode {
	case modeFollowup:
		return "Answer the follow-up, ctrl+s for next, ctrl+n to save and continue"
	case modeSummaryCorrection:
		return "Describe the correction to the summary, ctrl+s to apply, esc to cancel"
	case modeRecommendationCorrection:
		return "Describe the correction to the recommendation, ctrl+s to apply, esc to cancel"
	default:
		return "Type your answer, ctrl+s to submit"
	}
}

// View renders the screen.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Business Blueprint Discovery"))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	s := m.session
	if s == nil {
		if m.busy {
			b.WriteString(m.spinner.View() + " Preparing the interview...\n")
		}
		return b.String()
	}

	b.WriteString(m.progress(s))
	b.WriteString("\n")

	switch m.mode {
	case modeAnswer:
		b.WriteString(questionStyle.Render(s.CurrentQuestion))
		b.WriteString("\n")
	case modeFollowup:
		b.WriteString(mutedStyle.Render("Q: " + s.CurrentQuestion))
		b.WriteString("\n")
		if m.followup < len(s.PendingFollowups) {
			b.WriteString(questionStyle.Render(fmt.Sprintf("Follow-up %d/%d: %s",
				m.followup+1, len(s.PendingFollowups), s.PendingFollowups[m.followup].Question)))
			b.WriteString("\n")
		}
	case modeIdle:
		if s.State == domain.StateAwaitingQuestion {
			b.WriteString(mutedStyle.Render("No question yet. Press ctrl+s to ask again."))
			b.WriteString("\n")
		}
		if s.State == domain.StateCompleted {
			b.WriteString(subtitleStyle.Render("All sub-processes covered."))
			b.WriteString("\n")
		}
	}

	if m.busy {
		b.WriteString(m.spinner.View() + " Working...\n")
	} else if m.mode != modeIdle {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if s.Understanding != "" {
		b.WriteString(sectionStyle.Render(subtitleStyle.Render("Process understanding") + "\n" + s.Understanding))
		b.WriteString("\n")
	}
	if s.Recommendation != "" {
		b.WriteString(sectionStyle.Render(subtitleStyle.Render("Process recommendation") + "\n" + s.Recommendation))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("ctrl+s submit · ctrl+u correct summary · ctrl+r recommendation · ctrl+e export · ctrl+c quit"))
	return b.String()
}

func (m *Model) progress(s *domain.DiscoverySession) string {
	if len(s.Subprocesses) == 0 {
		return subtitleStyle.Render("No sub-processes")
	}
	current := s.CurrentSubprocess()
	if current == "" {
		return subtitleStyle.Render(fmt.Sprintf("Sub-processes: %d/%d", len(s.Subprocesses), len(s.Subprocesses)))
	}
	return subtitleStyle.Render(fmt.Sprintf("Sub-process %d/%d: %s", s.Cursor+1, len(s.Subprocesses), current))
}
