package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// backend runs client commands either against a server or directly on local storage.
type backend interface {
	Generate(ctx context.Context, prompt string) (*models.GenerateResponse, error)
	Upload(ctx context.Context, data []byte) (*models.UploadResponse, error)
	Image(ctx context.Context, id string) (*models.Image, error)
	Embedding(ctx context.Context, id string) (*models.EmbeddingResponse, error)
	Similar(ctx context.Context, imageID, prompt string) (*models.SimilarityResponse, error)
	SimilarText(ctx context.Context, text, prompt string) (*models.SimilarityResponse, error)
	Status(ctx context.Context) (map[string]interface{}, error)
	Close()
}

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type httpBackend struct {
	baseURL string
	client  *http.Client
}

func newHTTPBackend(serverURL string) *httpBackend {
	return &httpBackend{
		baseURL: strings.TrimRight(serverURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (b *httpBackend) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var e models.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return &apiError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
		}
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *httpBackend) Generate(ctx context.Context, prompt string) (*models.GenerateResponse, error) {
	var out models.GenerateResponse
	if err := b.do(ctx, http.MethodPost, "/api/v1/images/generate?prompt="+url.QueryEscape(prompt), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Upload(ctx context.Context, data []byte) (*models.UploadResponse, error) {
	var out models.UploadResponse
	req := models.UploadRequest{ImageData: base64.StdEncoding.EncodeToString(data)}
	if err := b.do(ctx, http.MethodPost, "/api/v1/images", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Image(ctx context.Context, id string) (*models.Image, error) {
	var out models.Image
	if err := b.do(ctx, http.MethodGet, "/api/v1/images/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Embedding(ctx context.Context, id string) (*models.EmbeddingResponse, error) {
	var out models.EmbeddingResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/embeddings/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Similar(ctx context.Context, imageID, prompt string) (*models.SimilarityResponse, error) {
	q := url.Values{"image_id": {imageID}, "prompt": {prompt}}
	var out models.SimilarityResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/similarity?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) SimilarText(ctx context.Context, text, prompt string) (*models.SimilarityResponse, error) {
	q := url.Values{"text": {text}, "prompt": {prompt}}
	var out models.SimilarityResponse
	if err := b.do(ctx, http.MethodGet, "/api/v1/similarity/text?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *httpBackend) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := b.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *httpBackend) Close() {}

// localBackend serves client commands from the configured storage without a server.
type localBackend struct {
	c   *Components
	cfg *config.Config
}

func (b *localBackend) Generate(ctx context.Context, prompt string) (*models.GenerateResponse, error) {
	return b.c.Images.Generate(ctx, prompt)
}

func (b *localBackend) Upload(ctx context.Context, data []byte) (*models.UploadResponse, error) {
	return b.c.Images.UploadBytes(ctx, data)
}

func (b *localBackend) Image(ctx context.Context, id string) (*models.Image, error) {
	return b.c.Images.Get(ctx, id)
}

func (b *localBackend) Embedding(ctx context.Context, id string) (*models.EmbeddingResponse, error) {
	return b.c.Embeddings.GetOrGenerate(ctx, id)
}

func (b *localBackend) Similar(ctx context.Context, imageID, prompt string) (*models.SimilarityResponse, error) {
	results, err := b.c.Ranker.Rank(ctx, imageID, prompt)
	if err != nil {
		return nil, err
	}
	return &models.SimilarityResponse{Results: results}, nil
}

func (b *localBackend) SimilarText(ctx context.Context, text, prompt string) (*models.SimilarityResponse, error) {
	vec, err := b.c.Embeddings.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := b.c.Ranker.RankVector(ctx, vec, prompt, "")
	if err != nil {
		return nil, err
	}
	return &models.SimilarityResponse{Results: results}, nil
}

func (b *localBackend) Status(ctx context.Context) (map[string]interface{}, error) {
	imageCount, err := b.c.Catalog.CountImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	embeddingCount, err := b.c.Store.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	status := map[string]interface{}{
		"images":     imageCount,
		"embeddings": embeddingCount,
		"config":     b.cfg.Summary(),
	}
	if n, err := storage.UsageBytes(b.cfg.Storage.DatabasePath, b.cfg.LocalDataPaths()...); err == nil {
		status["disk_usage_bytes"] = n
	}
	return status, nil
}

func (b *localBackend) Close() {
	b.c.Close()
}
