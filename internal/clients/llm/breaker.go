package llm

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type BreakerOptions struct {
	Name string
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
	Interval    time.Duration
}

func (o BreakerOptions) withDefaults() BreakerOptions {
	if o.Name == "" {
		o.Name = "llm-rerank"
	}
	if o.ConsecutiveFailures == 0 {
		o.ConsecutiveFailures = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	return o
}

type breakerReranker struct {
	inner   Reranker
	cb      *gobreaker.CircuitBreaker[[]Refined]
	name    string
	log     *logger.Logger
	metrics *observability.Metrics
}

// WithBreaker guards inner with a circuit breaker. While open, Refine fails
// fast with gobreaker.ErrOpenState and the caller serves its passthrough.
func WithBreaker(inner Reranker, opts BreakerOptions, log *logger.Logger, metrics *observability.Metrics) Reranker {
	if inner == nil {
		return nil
	}
	opts = opts.withDefaults()
	l := log.With("component", "LLMBreaker", "breaker", opts.Name)
	metrics.SetBreakerState(opts.Name, stateValue(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[[]Refined](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// The model answering with nothing usable is not an outage.
			return err == nil || errors.Is(err, ErrEmptyResponse) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.SetBreakerState(name, stateValue(to))
			metrics.IncBreakerTransition(name, from.String(), to.String())
		},
	})
	return &breakerReranker{inner: inner, cb: cb, name: opts.Name, log: l, metrics: metrics}
}

func (b *breakerReranker) Refine(ctx context.Context, history []string, candidates []Candidate) ([]Refined, error) {
	return b.cb.Execute(func() ([]Refined, error) {
		return b.inner.Refine(ctx, history, candidates)
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsOpen reports whether err came from a rejecting breaker rather than the
// model itself.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
