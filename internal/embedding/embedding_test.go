package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/metrics"
	"document-intelligence/internal/models"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
	err  error
}

func newMemCache() *memCache { return &memCache{data: map[string][]float32{}} }

func (c *memCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = vec
	return nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestEmbed_Success(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "hello").Return([]float32{0.1, 0.2, 0.3}, nil).Once()

	s := NewService(p, "test-model", 3)
	res := s.Embed(context.Background(), "hello")

	assert.False(t, res.Fallback)
	assert.NoError(t, res.Err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.Vector)
	p.AssertExpectations(t)
}

func TestEmbed_Fallback(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		err  error
	}{
		{"provider error", nil, errors.New("deadline exceeded")},
		{"empty result", []float32{}, nil},
		{"wrong dimension", []float32{1, 2}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(mockProvider)
			p.On("EmbedQuery", mock.Anything, "text").Return(tt.vec, tt.err)
			reg := prometheus.NewRegistry()
			m := metrics.NewMetrics(reg)

			s := NewService(p, "test-model", 4, WithMetrics(m))
			res := s.Embed(context.Background(), "text")

			assert.True(t, res.Fallback)
			assert.Error(t, res.Err)
			require.Len(t, res.Vector, 4)
			assert.True(t, isZero(res.Vector))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingFallbacksTotal))
		})
	}
}

type panickingProvider struct{}

func (panickingProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	panic("malformed response")
}

func TestEmbed_ProviderPanicFallsBack(t *testing.T) {
	s := NewService(panickingProvider{}, "m", 4, WithBreaker(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	}))

	var res Result
	require.NotPanics(t, func() {
		res = s.Embed(context.Background(), "x")
	})
	assert.True(t, res.Fallback)
	assert.ErrorContains(t, res.Err, "malformed response")
	assert.Equal(t, []float32{0, 0, 0, 0}, res.Vector)

	s.Embed(context.Background(), "x")
	assert.Equal(t, gobreaker.StateOpen, s.State())
}

func TestEmbed_EmptyResultIsNoEmbedding(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "x").Return(nil, nil)

	res := NewService(p, "m", 8).Embed(context.Background(), "x")
	assert.ErrorIs(t, res.Err, models.ErrNoEmbedding)
}

func TestEmbed_DefaultDimension(t *testing.T) {
	s := NewService(new(mockProvider), "m", 0)
	assert.Equal(t, models.DefaultEmbeddingDimension, s.Dimension())
	assert.Len(t, s.ZeroVector(), models.DefaultEmbeddingDimension)
}

func TestEmbed_BreakerOpens(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	s := NewService(p, "m", 2, WithBreaker(gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	}))

	for i := 0; i < 2; i++ {
		assert.True(t, s.Embed(context.Background(), "a").Fallback)
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	res := s.Embed(context.Background(), "a")
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, gobreaker.ErrOpenState)
	p.AssertNumberOfCalls(t, "EmbedQuery", 2)
}

func TestEmbed_Cache(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "cached").Return([]float32{1, 2}, nil).Once()
	cache := newMemCache()

	s := NewService(p, "m", 2, WithCache(cache))
	first := s.Embed(context.Background(), "cached")
	second := s.Embed(context.Background(), "cached")

	assert.Equal(t, first.Vector, second.Vector)
	p.AssertNumberOfCalls(t, "EmbedQuery", 1)
}

func TestEmbed_FallbackNotCached(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "bad").Return(nil, errors.New("boom"))
	cache := newMemCache()

	s := NewService(p, "m", 2, WithCache(cache))
	s.Embed(context.Background(), "bad")

	assert.Empty(t, cache.data)
}

func TestEmbed_CacheErrorsIgnored(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "t").Return([]float32{1, 1}, nil)
	cache := newMemCache()
	cache.err = errors.New("redis down")

	res := NewService(p, "m", 2, WithCache(cache)).Embed(context.Background(), "t")
	assert.False(t, res.Fallback)
	assert.Equal(t, []float32{1, 1}, res.Vector)
}

func TestEmbed_Timeout(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, "slow").Return(nil, context.DeadlineExceeded).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	res := NewService(p, "m", 2, WithTimeout(time.Second)).Embed(context.Background(), "slow")
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestEmbed_RateLimiterCancelled(t *testing.T) {
	p := new(mockProvider)
	p.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	s := NewService(p, "m", 1, WithRateLimit(0.001, 1))

	assert.False(t, s.Embed(context.Background(), "first").Fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Embed(ctx, "second")
	assert.True(t, res.Fallback)
	p.AssertNumberOfCalls(t, "EmbedQuery", 1)
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", "a"), CacheKey("m", "a"))
	assert.NotEqual(t, CacheKey("m", "a"), CacheKey("m2", "a"))
	assert.NotEqual(t, CacheKey("m", "a"), CacheKey("m", "b"))
}
