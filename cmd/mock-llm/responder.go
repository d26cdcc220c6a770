package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/bbp-discovery/internal/generation"
	"github.com/ashureev/bbp-discovery/internal/reference"
)

var answerLine = regexp.MustCompile(`(?m)^A\d+: `)

// rule answers prompts containing marker. Rules are tried in order.
type rule struct {
	name   string
	marker string
	reply  func(prompt string) string
}

var rules = []rule{
	{"understanding_revision", "Here is the current summary", func(p string) string {
		return "- Revised process understanding\n- Correction applied: " + after(p, "correction or addition:")
	}},
	{"recommendation_revision", "Here is the current process recommendation", func(p string) string {
		return "## Revised recommendation\n- Correction applied: " + after(p, "correction or addition:")
	}},
	{"subprocesses", "agenda of a BBP discovery workshop", func(string) string {
		return strings.Join(reference.DefaultSubprocesses, "\n")
	}},
	{"probing_focus", "preparing a BBP discovery workshop", func(p string) string {
		return "Probe volumes, approval chains and supplier onboarding for " + after(p, "Sub-process:") + "."
	}},
	{"question", "Current sub-process:", func(p string) string {
		return fmt.Sprintf("How does your team handle %s today?", after(p, "Current sub-process:"))
	}},
	{"followups", "Ask follow-up questions", func(string) string {
		return "Who approves this step?\nWhich systems are involved?"
	}},
	{"recommendation", "design a detailed process recommendation", func(string) string {
		return "## To-be process\n- Use SAP Ariba Sourcing guided events\n- Route approvals through Ariba workflows"
	}},
	{"understanding", "summarize the user's current sourcing process", func(p string) string {
		return fmt.Sprintf("- The client described %d exchange(s) of their current process", len(answerLine.FindAllString(p, -1)))
	}},
}

// after returns the trimmed first line following marker.
func after(prompt, marker string) string {
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(prompt[i+len(marker):], " \t\n")
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// responder is a deterministic Generator for local runs and demos.
type responder struct {
	delay    time.Duration
	failEach int
	calls    atomic.Int64
}

func (r *responder) Generate(ctx context.Context, prompt string) (string, error) {
	n := r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.failEach > 0 && n%int64(r.failEach) == 0 {
		return "", &generation.Error{Message: fmt.Sprintf("injected failure on call %d", n)}
	}
	text, _ := respond(prompt)
	return text, nil
}

// respond picks the reply for prompt and names the rule that matched.
func respond(prompt string) (string, string) {
	for _, r := range rules {
		if strings.Contains(prompt, r.marker) {
			return r.reply(prompt), r.name
		}
	}
	return "OK", "fallback"
}
