// Package storage defines the persistence interfaces for the image catalog and embedding store.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ruiji/internal/models"
)

// MaxBatchGetKeys is the most ids a single BatchGetEmbeddings call accepts.
const MaxBatchGetKeys = 100

var (
	// ErrNotFound is returned when a record or embedding does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBatchTooLarge is returned when BatchGetEmbeddings is given more than MaxBatchGetKeys ids.
	ErrBatchTooLarge = errors.New("batch exceeds maximum key count")
)

// ImageCatalog stores image records and answers prompt-scoped lookups.
type ImageCatalog interface {
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
	// QueryByPrompt returns every record whose prompt equals prompt exactly, in insertion order.
	QueryByPrompt(ctx context.Context, prompt string) ([]models.CatalogEntry, error)
	ListImages(ctx context.Context, offset, limit int) ([]*models.Image, error)
	CountImages(ctx context.Context) (int64, error)
	Close() error
}

// EmbeddingStore is an insert-only key/vector store.
type EmbeddingStore interface {
	// GetEmbedding returns ErrNotFound when id has no embedding.
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
	// BatchGetEmbeddings returns the embeddings that exist among ids; missing ids are absent
	// from the map and are not an error.
	BatchGetEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error)
	// PutEmbedding inserts vec under id. An existing id is left untouched.
	PutEmbedding(ctx context.Context, id string, vec []float32) error
	CountEmbeddings(ctx context.Context) (int64, error)
	Close() error
}

// CheckBatch validates a batch-get id list against MaxBatchGetKeys.
func CheckBatch(ids []string) error {
	if len(ids) > MaxBatchGetKeys {
		return ErrBatchTooLarge
	}
	return nil
}
