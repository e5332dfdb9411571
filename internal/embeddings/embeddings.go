package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDimensions matches nomic-embed-text.
const DefaultDimensions = 768

const defaultCacheSize = 512

// ErrDimensionMismatch is returned when a backend produces a vector of the
// wrong length for the configured store.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service fixes the vector length for every caller, returns the zero vector
// for empty text, and memoises recent texts.
type Service struct {
	backend    Embedder
	dimensions int
	cache      *lru.Cache[string, []float32]
}

// NewService wraps backend. cacheSize <= 0 picks a default.
func NewService(backend Embedder, dimensions, cacheSize int) (*Service, error) {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Service{backend: backend, dimensions: dimensions, cache: cache}, nil
}

// Dimensions is the fixed vector length.
func (s *Service) Dimensions() int { return s.dimensions }

// Zero returns a fresh zero vector of the configured length.
func (s *Service) Zero() []float32 { return make([]float32, s.dimensions) }

// Embed never calls the backend for empty or whitespace-only text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return s.Zero(), nil
	}
	if v, ok := s.cache.Get(text); ok {
		return v, nil
	}

	v, err := s.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.dimensions)
	}
	s.cache.Add(text, v)
	return v, nil
}

// CosineSimilarity returns 0 when the vectors differ in length or either
// has zero magnitude.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
