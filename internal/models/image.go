// Package models defines core data structures for images, embeddings, and similarity results.
package models

import "time"

// Image is a catalog record for a generated or uploaded image.
type Image struct {
	ID             string    `json:"image_id"`
	Prompt         string    `json:"prompt"`
	ModifiedPrompt string    `json:"modified_prompt"`
	ObjectKey      string    `json:"object_key"`
	EmbeddingID    string    `json:"embedding_id"`
	CreatedAt      time.Time `json:"created_at"`
	// URL is a presigned download link; set only on read paths, never persisted.
	URL string `json:"url,omitempty"`
}

// CatalogEntry is the slice of an Image record the similarity ranker needs.
type CatalogEntry struct {
	ImageID     string `json:"image_id"`
	EmbeddingID string `json:"embedding_id"`
}

// GenerateResponse is returned after an image has been generated from a prompt.
type GenerateResponse struct {
	BasePrompt     string `json:"base_prompt"`
	ModifiedPrompt string `json:"modified_prompt"`
	ImageID        string `json:"image_id"`
}

// UploadRequest carries base64 image data, optionally as a data URL.
type UploadRequest struct {
	ImageData string `json:"image_data"`
}

// UploadResponse is returned after an image upload.
type UploadResponse struct {
	ImageID string `json:"image_id"`
}
