package models

import "fmt"

// SimilarityQuery asks for images similar to ImageID among those sharing Prompt.
type SimilarityQuery struct {
	ImageID string `json:"image_id"`
	Prompt  string `json:"prompt"`
}

// Validate reports an error if either field is empty. The prompt is matched
// exactly against catalog records, so it is not trimmed.
func (q *SimilarityQuery) Validate() error {
	if q.ImageID == "" || q.Prompt == "" {
		return fmt.Errorf("image id and prompt are required")
	}
	return nil
}

// SimilarityResult is one ranked candidate. Similarity is cosine similarity in [-1, 1].
type SimilarityResult struct {
	ImageID    string  `json:"image_id"`
	Similarity float64 `json:"similarity"`
}

// SimilarityResponse is the ranked result set, descending by similarity.
type SimilarityResponse struct {
	Results []SimilarityResult `json:"results"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
