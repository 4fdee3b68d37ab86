// Package embedding turns images and text into L2-normalized vectors in a shared space,
// so a text query can be compared against stored image embeddings.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput is returned when there is no text or image data to embed.
	ErrEmptyInput = errors.New("empty embedding input")
	// ErrImageNotFound is returned by Service when the image record does not exist.
	ErrImageNotFound = errors.New("image not found")
)

// Embedder produces unit-length embeddings for images and text.
type Embedder interface {
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
