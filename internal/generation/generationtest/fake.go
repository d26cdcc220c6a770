// Package generationtest provides a scripted Generator for tests.
package generationtest

import (
	"context"
	"sync"

	"github.com/ashureev/bbp-discovery/internal/generation"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Text returns a successful reply.
func Text(s string) Reply {
	return Reply{Text: s}
}

// Fail returns a failing reply with a *generation.Error.
func Fail(msg string) Reply {
	return Reply{Err: &generation.Error{Message: msg}}
}

// Call records one Generate invocation.
type Call struct {
	Operation string
	SessionID string
	Prompt    string
}

// Fake answers Generate from per-operation queues. The last reply of a
// queue repeats once the queue is drained. Operations with no script get
// Default.
type Fake struct {
	mu      sync.Mutex
	script  map[string][]Reply
	Default Reply
	calls   []Call
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{script: make(map[string][]Reply)}
}

// On queues replies for op.
func (f *Fake) On(op string, replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[op] = append(f.script[op], replies...)
	return f
}

// Generate implements generation.Generator.
func (f *Fake) Generate(ctx context.Context, prompt string) (string, error) {
	op := generation.OperationFrom(ctx)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Operation: op, SessionID: generation.SessionFrom(ctx), Prompt: prompt})
	reply := f.Default
	if queue := f.script[op]; len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			f.script[op] = queue[1:]
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reply.Text, reply.Err
}

// Calls returns every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded calls for op.
func (f *Fake) CallsFor(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Operation == op {
			out = append(out, c)
		}
	}
	return out
}
