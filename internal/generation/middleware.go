package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// WithTimeout bounds every call to g by d. A d of zero or less returns g
// unchanged, so calls block until the backend answers.
func WithTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		text, err := g.Generate(ctx, prompt)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{
				Message: fmt.Sprintf("generation timed out after %s", d),
				Err:     context.DeadlineExceeded,
			}
		}
		return text, NewError(err)
	})
}

// Metrics records generation calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the generation collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bbp",
			Subsystem: "generation",
			Name:      "calls_total",
			Help:      "Generation calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bbp",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation call latency by operation.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"operation"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// Instrument counts and times every call to g.
func Instrument(g Generator, m *Metrics) Generator {
	if m == nil {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		op := OperationFrom(ctx)
		start := time.Now()
		text, err := g.Generate(ctx, prompt)
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		m.calls.WithLabelValues(op, outcome).Inc()
		return text, err
	})
}

// Record writes each prompt and its completion (or failure) to the
// conversation log.
func Record(g Generator, cl ConversationLogger) Generator {
	if cl == nil {
		return g
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		requestID := uuid.New().String()
		base := ConversationLogEvent{
			RequestID: requestID,
			SessionID: SessionFrom(ctx),
			Operation: OperationFrom(ctx),
		}

		in := base
		in.Direction = DirectionPrompt
		in.ContentRaw = prompt
		cl.Log(in)

		start := time.Now()
		text, err := g.Generate(ctx, prompt)

		out := base
		out.DurationMS = time.Since(start).Milliseconds()
		if err != nil {
			out.Direction = DirectionError
			out.ContentRaw = err.Error()
		} else {
			out.Direction = DirectionCompletion
			out.ContentRaw = text
		}
		cl.Log(out)
		return text, err
	})
}
