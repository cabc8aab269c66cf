// Package health aggregates the reachability of the pipeline's collaborators.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"document-intelligence/internal/models"
)

const (
	CheckWorkspace = "health-check"
	CheckThreshold = 0.9
	CheckLimit     = 1

	ServiceConverter = "document_converter"
	ServiceEmbedding = "embedding"
	ServiceStorage   = "storage"
)

type Searcher interface {
	SimilaritySearch(ctx context.Context, q models.SimilarityQuery) ([]models.SearchResult, error)
}

// BreakerStater exposes the embedding circuit breaker.
type BreakerStater interface {
	State() gobreaker.State
}

type Checker struct {
	store     Searcher
	embedding BreakerStater
	dimension int
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Checker)

// WithTimeout bounds the storage check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

func NewChecker(store Searcher, embedding BreakerStater, dimension int, opts ...Option) *Checker {
	c := &Checker{
		store:     store,
		embedding: embedding,
		dimension: dimension,
		timeout:   5 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check reports healthy when the storage check succeeds. The converter is
// in-process and always reported ok. An open embedding breaker is reported
// but does not fail the check, since processing continues with fallbacks.
func (c *Checker) Check(ctx context.Context) models.HealthReport {
	report := models.HealthReport{
		Status: models.HealthHealthy,
		Services: map[string]string{
			ServiceConverter: models.ServiceOK,
			ServiceEmbedding: c.embeddingStatus(),
		},
		Timestamp: c.now().UTC(),
	}

	if err := c.checkStorage(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		report.Status = models.HealthUnhealthy
		report.Services[ServiceStorage] = "error"
		report.Error = err.Error()
		return report
	}
	report.Services[ServiceStorage] = models.ServiceOK
	return report
}

func (c *Checker) embeddingStatus() string {
	if c.embedding == nil {
		return models.ServiceOK
	}
	switch c.embedding.State() {
	case gobreaker.StateOpen:
		return "circuit open"
	case gobreaker.StateHalfOpen:
		return "recovering"
	default:
		return models.ServiceOK
	}
}

func (c *Checker) checkStorage(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storage check panic: %v", r)
		}
	}()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	_, err = c.store.SimilaritySearch(ctx, models.SimilarityQuery{
		Vector:      make([]float32, c.dimension),
		WorkspaceID: CheckWorkspace,
		Threshold:   CheckThreshold,
		Limit:       CheckLimit,
	})
	return err
}
