// Package embedding wraps an embedding provider with the zero-vector
// fallback the pipeline relies on, plus rate limiting, a circuit breaker
// and an optional cache.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"document-intelligence/internal/metrics"
	"document-intelligence/internal/models"
	"document-intelligence/internal/telemetry"
)

// Result is the outcome of one Embed call. When Fallback is set, Vector is
// all zeros and Err holds the provider failure.
type Result struct {
	Vector   []float32
	Fallback bool
	Err      error
}

type Service struct {
	provider  Provider
	model     string
	dimension int
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	cache     Cache
	metrics   *metrics.Metrics
}

type Option func(*Service)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithRateLimit caps provider calls at rps per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(st gobreaker.Settings) Option {
	return func(s *Service) {
		s.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// NewService wraps provider. dimension is the vector length the model
// returns; anything else is treated as a failure.
func NewService(provider Provider, model string, dimension int, opts ...Option) *Service {
	if dimension <= 0 {
		dimension = models.DefaultEmbeddingDimension
	}
	s := &Service{
		provider:  provider,
		model:     model,
		dimension: dimension,
	}
	s.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings(model))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBreakerSettings(model string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "embedding:" + model,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
}

func (s *Service) Model() string { return s.model }

func (s *Service) Dimension() int { return s.dimension }

// State reports the circuit breaker state.
func (s *Service) State() gobreaker.State { return s.breaker.State() }

// ZeroVector returns a fresh zero vector of the service dimension.
func (s *Service) ZeroVector() []float32 {
	return make([]float32, s.dimension)
}

// Embed returns the embedding for text. It never fails: any provider error,
// empty result or wrong-length vector yields a zero vector with Fallback set.
func (s *Service) Embed(ctx context.Context, text string) Result {
	ctx, span := telemetry.Tracer().Start(ctx, "embedding.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", s.model),
		attribute.Int("embedding.text_length", len(text)),
	)

	start := time.Now()
	key := CacheKey(s.model, text)
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("Embedding cache read failed")
		case ok && len(vec) == s.dimension:
			span.SetAttributes(attribute.Bool("embedding.cache_hit", true))
			s.metrics.RecordEmbedding("cache", 0)
			return Result{Vector: vec}
		}
	}

	vec, err := s.call(ctx, text)
	if err == nil && len(vec) != s.dimension {
		if len(vec) == 0 {
			err = models.ErrNoEmbedding
		} else {
			err = fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), s.dimension)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("embedding.fallback", true))
		log.Error().Err(err).Str("model", s.model).Msg("Error generating embedding, using zero vector")
		s.metrics.RecordEmbedding("fallback", time.Since(start))
		return Result{Vector: s.ZeroVector(), Fallback: true, Err: err}
	}

	s.metrics.RecordEmbedding("ok", time.Since(start))
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, vec); err != nil {
			log.Debug().Err(err).Msg("Embedding cache write failed")
		}
	}
	return Result{Vector: vec}
}

func (s *Service) call(ctx context.Context, text string) ([]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.embedQuery(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("embedding provider unavailable: %w", err)
		}
		return nil, err
	}
	vec, _ := out.([]float32)
	return vec, nil
}

// embedQuery turns a provider panic into an error so the breaker counts it
// and Embed falls back.
func (s *Service) embedQuery(ctx context.Context, text string) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embedding provider panic: %v", r)
		}
	}()
	return s.provider.EmbedQuery(ctx, text)
}
