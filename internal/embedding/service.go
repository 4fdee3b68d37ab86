package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// VectorStore is the part of the embedding store the service reads and writes.
type VectorStore interface {
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
	PutEmbedding(ctx context.Context, id string, vec []float32) error
}

// ImageLookup resolves image records.
type ImageLookup interface {
	GetImage(ctx context.Context, id string) (*models.Image, error)
}

// BlobReader reads image bytes by object key.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Service returns stored embeddings and generates missing ones from the image blob.
type Service struct {
	store    VectorStore
	images   ImageLookup
	blobs    BlobReader
	embedder Embedder
	logger   *zap.Logger
	group    singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the embedding service.
func NewService(store VectorStore, images ImageLookup, blobs BlobReader, embedder Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		images:   images,
		blobs:    blobs,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrGenerate returns the embedding stored under id. On a miss it embeds the image with
// the same id, stores the vector and reports it as generated. Concurrent misses for one id
// share a single generation, which runs to completion even if the caller that started it
// gives up.
func (s *Service) GetOrGenerate(ctx context.Context, id string) (*models.EmbeddingResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: embedding id", ErrEmptyInput)
	}

	vec, err := s.store.GetEmbedding(ctx, id)
	if err == nil {
		return &models.EmbeddingResponse{EmbeddingID: id, Embedding: vec, Source: models.SourceCache}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get embedding %s: %w", id, err)
	}

	// The shared generation outlives any single caller; each caller still honours its own ctx.
	genCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (interface{}, error) {
		return s.generate(genCtx, id)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("generate embedding %s: %w", id, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &models.EmbeddingResponse{EmbeddingID: id, Embedding: res.Val.([]float32), Source: models.SourceGenerated}, nil
	}
}

func (s *Service) generate(ctx context.Context, id string) ([]float32, error) {
	img, err := s.images.GetImage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}

	data, err := s.blobs.Get(ctx, img.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", img.ObjectKey, err)
	}

	vec, err := s.embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed image %s: %w", id, err)
	}

	if err := s.store.PutEmbedding(ctx, id, vec); err != nil {
		return nil, err
	}
	s.logger.Info("Generated embedding",
		zap.String("embedding_id", id),
		zap.Int("dimensions", len(vec)))
	return vec, nil
}

// EmbedText returns the text embedding used for text-to-image queries.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vec, nil
}

// Dimensions returns the dimension of generated embeddings.
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}
