package domain

import (
	"time"
)

// WorkflowState describes where an interactive discovery session is.
type WorkflowState string

const (
	// StateAwaitingQuestion means the next suggested question has not been produced yet.
	StateAwaitingQuestion WorkflowState = "awaiting_question"
	// StateAwaitingMainAnswer means a question is posed and the main answer is pending.
	StateAwaitingMainAnswer WorkflowState = "awaiting_main_answer"
	// StateAwaitingFollowupAnswers means follow-up questions are posed and pending.
	StateAwaitingFollowupAnswers WorkflowState = "awaiting_followup_answers"
	// StateCompleted is terminal: every subprocess has been covered.
	StateCompleted WorkflowState = "completed"
)

// Valid reports whether s is one of the known states.
func (s WorkflowState) Valid() bool {
	switch s {
	case StateAwaitingQuestion, StateAwaitingMainAnswer, StateAwaitingFollowupAnswers, StateCompleted:
		return true
	}
	return false
}

// DiscoverySession holds everything owned by one interactive discovery run.
type DiscoverySession struct {
	ID               string        `json:"session_id"`
	State            WorkflowState `json:"state"`
	Subprocesses     []string      `json:"subprocesses"`
	Cursor           int           `json:"current_subprocess_index"`
	CurrentQuestion  string        `json:"current_question"`
	MainAnswer       string        `json:"main_answer,omitempty"`
	PendingFollowups []Followup    `json:"pending_followups"`
	Transcript       Transcript    `json:"history"`
	Choices          UserChoices   `json:"choices"`
	RAGContext       string        `json:"-"`
	Understanding    string        `json:"process_understanding"`
	Recommendation   string        `json:"process_recommendation"`
	Diagnostics      []string      `json:"diagnostics"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewDiscoverySession returns a session positioned at the first subprocess.
func NewDiscoverySession(id string, subprocesses []string, choices UserChoices, ragContext string) *DiscoverySession {
	now := time.Now()
	list := make([]string, len(subprocesses))
	copy(list, subprocesses)
	return &DiscoverySession{
		ID:               id,
		State:            StateAwaitingQuestion,
		Subprocesses:     list,
		PendingFollowups: []Followup{},
		Choices:          choices.Clone(),
		RAGContext:       ragContext,
		Diagnostics:      []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// CurrentSubprocess returns the subprocess under the cursor, or "" once past the end.
func (s *DiscoverySession) CurrentSubprocess() string {
	if s.Cursor < 0 || s.Cursor >= len(s.Subprocesses) {
		return ""
	}
	return s.Subprocesses[s.Cursor]
}

// IsComplete returns true once every subprocess has been covered.
func (s *DiscoverySession) IsComplete() bool {
	return s.State == StateCompleted
}

// AddDiagnostic records a user-visible note about a degraded step.
func (s *DiscoverySession) AddDiagnostic(msg string) {
	s.Diagnostics = append(s.Diagnostics, msg)
}
