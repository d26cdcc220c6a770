// Package domain contains core domain types for the discovery assistant.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Followup is a follow-up question asked after a main answer.
type Followup struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Exchange is one discovery turn: a main question/answer pair plus its follow-ups.
type Exchange struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Followups []Followup `json:"followups"`
}

// ExchangeRef identifies an Exchange by its 0-based position in a Transcript.
type ExchangeRef int

// Transcript is the ordered history of Exchanges for one session.
// Exchanges are only ever appended; only follow-up answers change in place.
type Transcript struct {
	exchanges []Exchange
}

// NewTranscript builds a Transcript from existing exchanges, copying them.
func NewTranscript(exchanges []Exchange) Transcript {
	t := Transcript{exchanges: make([]Exchange, 0, len(exchanges))}
	for _, e := range exchanges {
		t.exchanges = append(t.exchanges, cloneExchange(e))
	}
	return t
}

// Len returns the number of exchanges.
func (t *Transcript) Len() int {
	return len(t.exchanges)
}

// Exchanges returns a deep copy of the exchanges in order.
func (t *Transcript) Exchanges() []Exchange {
	out := make([]Exchange, len(t.exchanges))
	for i, e := range t.exchanges {
		out[i] = cloneExchange(e)
	}
	return out
}

// Exchange returns a copy of the referenced exchange.
func (t *Transcript) Exchange(ref ExchangeRef) (Exchange, error) {
	if err := t.check(ref); err != nil {
		return Exchange{}, err
	}
	return cloneExchange(t.exchanges[ref]), nil
}

// Last returns a reference to the most recent exchange.
func (t *Transcript) Last() (ExchangeRef, error) {
	if len(t.exchanges) == 0 {
		return 0, fmt.Errorf("%w: transcript has no exchanges", ErrNotFound)
	}
	return ExchangeRef(len(t.exchanges) - 1), nil
}

// AppendExchange adds a new exchange with no follow-ups.
func (t *Transcript) AppendExchange(question, answer string) ExchangeRef {
	t.exchanges = append(t.exchanges, Exchange{
		Question:  question,
		Answer:    answer,
		Followups: []Followup{},
	})
	return ExchangeRef(len(t.exchanges) - 1)
}

// AppendFollowup appends a follow-up pair to the referenced exchange.
func (t *Transcript) AppendFollowup(ref ExchangeRef, question, answer string) error {
	if err := t.check(ref); err != nil {
		return err
	}
	e := &t.exchanges[ref]
	// Grow into a fresh backing array so slices handed out earlier never alias.
	followups := make([]Followup, len(e.Followups), len(e.Followups)+1)
	copy(followups, e.Followups)
	e.Followups = append(followups, Followup{Question: question, Answer: answer})
	return nil
}

// ReplaceFollowups overwrites the follow-ups of the referenced exchange.
func (t *Transcript) ReplaceFollowups(ref ExchangeRef, followups []Followup) error {
	if err := t.check(ref); err != nil {
		return err
	}
	t.exchanges[ref].Followups = cloneFollowups(followups)
	return nil
}

// SetFollowupAnswer fills in the answer of one follow-up of the referenced exchange.
func (t *Transcript) SetFollowupAnswer(ref ExchangeRef, index int, answer string) error {
	if err := t.check(ref); err != nil {
		return err
	}
	e := &t.exchanges[ref]
	if index < 0 || index >= len(e.Followups) {
		return fmt.Errorf("%w: follow-up %d of exchange %d", ErrNotFound, index+1, int(ref)+1)
	}
	followups := cloneFollowups(e.Followups)
	followups[index].Answer = answer
	e.Followups = followups
	return nil
}

// Render serializes the transcript into the plain history format used in prompts.
func (t *Transcript) Render() string {
	var b strings.Builder
	for i, e := range t.exchanges {
		n := i + 1
		fmt.Fprintf(&b, "Q%d: %s\n", n, e.Question)
		fmt.Fprintf(&b, "A%d: %s\n", n, e.Answer)
		for j, f := range e.Followups {
			fmt.Fprintf(&b, "  ↳ Follow-up %d: %s\n", j+1, f.Question)
			fmt.Fprintf(&b, "     Answer: %s\n", f.Answer)
		}
	}
	return strings.TrimSpace(b.String())
}

// MarshalJSON encodes the transcript as an array of exchanges.
func (t Transcript) MarshalJSON() ([]byte, error) {
	if t.exchanges == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.exchanges)
}

// UnmarshalJSON decodes an array of exchanges.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var exchanges []Exchange
	if err := json.Unmarshal(data, &exchanges); err != nil {
		return err
	}
	for i := range exchanges {
		if exchanges[i].Followups == nil {
			exchanges[i].Followups = []Followup{}
		}
	}
	t.exchanges = exchanges
	return nil
}

func (t *Transcript) check(ref ExchangeRef) error {
	if len(t.exchanges) == 0 {
		return fmt.Errorf("%w: transcript has no exchanges", ErrNotFound)
	}
	if ref < 0 || int(ref) >= len(t.exchanges) {
		return fmt.Errorf("%w: exchange %d", ErrNotFound, int(ref)+1)
	}
	return nil
}

func cloneExchange(e Exchange) Exchange {
	e.Followups = cloneFollowups(e.Followups)
	return e
}

func cloneFollowups(in []Followup) []Followup {
	out := make([]Followup, len(in))
	copy(out, in)
	return out
}
