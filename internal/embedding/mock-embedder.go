package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/hyperjump/ruiji/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. The same input always
// yields the same unit vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedImage returns a deterministic embedding derived from a hash of data.
func (e *MockEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return e.vector(h.Sum64()), nil
}

// EmbedText returns a deterministic embedding derived from a hash of text.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return e.vector(uint64(HashString(text))), nil
}

func (e *MockEmbedder) vector(seed uint64) []float32 {
	emb := make([]float32, e.dimensions)
	s := float64(seed%100003) + 1
	for i := range emb {
		emb[i] = float32(math.Sin(s*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
