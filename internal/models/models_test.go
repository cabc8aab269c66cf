package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchRequest_Normalize(t *testing.T) {
	tests := []struct {
		name          string
		in            SearchRequest
		wantThreshold float64
		wantMax       int
	}{
		{"defaults for zero limit", SearchRequest{SimilarityThreshold: 0.5}, 0.5, DefaultMaxResults},
		{"negative threshold", SearchRequest{SimilarityThreshold: -1, MaxResults: 5}, 0, 5},
		{"threshold above one", SearchRequest{SimilarityThreshold: 1.5, MaxResults: 5}, 1, 5},
		{"limit above cap", SearchRequest{SimilarityThreshold: 0.7, MaxResults: 500}, 0.7, MaxResultsLimit},
		{"limit at lower bound", SearchRequest{SimilarityThreshold: 0.7, MaxResults: 1}, 0.7, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantThreshold, got.SimilarityThreshold)
			assert.Equal(t, tt.wantMax, got.MaxResults)
		})
	}
}

func TestProcessingStatus_Terminal(t *testing.T) {
	assert.False(t, StatusUploaded.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusProcessed.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
