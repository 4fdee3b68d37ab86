// Package images generates, uploads and serves catalog images.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/blob"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// DefaultPresignTTL is how long URLs returned by Get stay valid.
const DefaultPresignTTL = time.Hour

var (
	// ErrInvalidImageData is returned when uploaded data is missing or not valid base64.
	ErrInvalidImageData = errors.New("invalid image data")
	// ErrImageNotFound is returned when no image record exists for an id.
	ErrImageNotFound = errors.New("image not found")
)

// Catalog is the part of the image catalog the service writes and reads.
type Catalog interface {
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
}

// CreateHook runs after an image has been stored and catalogued.
type CreateHook func(ctx context.Context, img *models.Image) error

// Service creates image records backed by blobs.
type Service struct {
	catalog    Catalog
	blobs      blob.Store
	generator  Generator
	presignTTL time.Duration
	logger     *zap.Logger
	intn       func(n int) int
	newID      func() string
	afterSave  CreateHook
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPresignTTL sets the validity of URLs returned by Get.
func WithPresignTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// WithRandom replaces the source used to pick prompt modifiers.
func WithRandom(intn func(n int) int) Option {
	return func(s *Service) {
		s.intn = intn
	}
}

// WithIDGenerator replaces uuid.NewString for new image ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithCreateHook registers a hook called after every successful Generate or Upload. Hook
// failures are logged and do not fail the call.
func WithCreateHook(h CreateHook) Option {
	return func(s *Service) {
		s.afterSave = h
	}
}

// NewService wires the image service. generator may be nil, in which case Generate fails.
func NewService(catalog Catalog, blobs blob.Store, generator Generator, opts ...Option) *Service {
	s := &Service{
		catalog:    catalog,
		blobs:      blobs,
		generator:  generator,
		presignTTL: DefaultPresignTTL,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate renders an image for basePrompt decorated with a random camera angle and style.
// The record is catalogued under basePrompt, so every variant of a prompt shares a scope.
func (s *Service) Generate(ctx context.Context, basePrompt string) (*models.GenerateResponse, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("image generation is not configured")
	}
	if strings.TrimSpace(basePrompt) == "" {
		basePrompt = DefaultPrompt
	}
	modified := ModifyPrompt(basePrompt, s.intn)

	data, err := s.generator.Generate(ctx, modified)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	id := s.newID()
	img := &models.Image{
		ID:             id,
		Prompt:         basePrompt,
		ModifiedPrompt: modified,
		ObjectKey:      "images/" + id + ".png",
		EmbeddingID:    id,
	}
	if err := s.save(ctx, img, data, "image/png"); err != nil {
		return nil, err
	}
	s.logger.Info("Generated image",
		zap.String("image_id", id),
		zap.String("prompt", basePrompt),
		zap.String("modified_prompt", modified))

	return &models.GenerateResponse{BasePrompt: basePrompt, ModifiedPrompt: modified, ImageID: id}, nil
}

// Upload stores base64 image data, optionally given as a data URL.
func (s *Service) Upload(ctx context.Context, encoded string) (*models.UploadResponse, error) {
	data, err := DecodeImageData(encoded)
	if err != nil {
		return nil, err
	}
	return s.UploadBytes(ctx, data)
}

// UploadFile stores the image file at path. The file extension decides the format when the
// bytes themselves are not recognised.
func (s *Service) UploadFile(ctx context.Context, path string) (*models.UploadResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.upload(ctx, data, filepath.Ext(path))
}

// UploadBytes stores raw image bytes under the uploaded prompt.
func (s *Service) UploadBytes(ctx context.Context, data []byte) (*models.UploadResponse, error) {
	return s.upload(ctx, data, "")
}

func (s *Service) upload(ctx context.Context, data []byte, ext string) (*models.UploadResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImageData)
	}
	suffix, contentType := uploadFormat(data, ext)
	id := s.newID()
	img := &models.Image{
		ID:             id,
		Prompt:         UploadedPrompt,
		ModifiedPrompt: UploadedPrompt,
		ObjectKey:      "uploads/" + id + suffix,
		EmbeddingID:    id,
	}
	if err := s.save(ctx, img, data, contentType); err != nil {
		return nil, err
	}
	s.logger.Info("Uploaded image",
		zap.String("image_id", id),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)))
	return &models.UploadResponse{ImageID: id}, nil
}

// imageSuffixes maps the image types stored as uploads to their object key suffix.
var imageSuffixes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// uploadFormat picks the object key suffix and content type for uploaded bytes: sniffed from
// the data first, then from ext, falling back to PNG.
func uploadFormat(data []byte, ext string) (suffix, contentType string) {
	contentType = http.DetectContentType(data)
	if suffix, ok := imageSuffixes[contentType]; ok {
		return suffix, contentType
	}
	if ext != "" {
		if ct, _, err := mime.ParseMediaType(mime.TypeByExtension(strings.ToLower(ext))); err == nil {
			if suffix, ok := imageSuffixes[ct]; ok {
				return suffix, ct
			}
		}
	}
	return ".png", "image/png"
}

func (s *Service) save(ctx context.Context, img *models.Image, data []byte, contentType string) error {
	if err := s.blobs.Put(ctx, img.ObjectKey, data, contentType); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	if err := s.catalog.CreateImage(ctx, img); err != nil {
		return fmt.Errorf("catalog image: %w", err)
	}
	if s.afterSave != nil {
		if err := s.afterSave(ctx, img); err != nil {
			s.logger.Warn("Post-create hook failed", zap.String("image_id", img.ID), zap.Error(err))
		}
	}
	return nil
}

// Get returns the image record with a presigned download URL.
func (s *Service) Get(ctx context.Context, id string) (*models.Image, error) {
	img, err := s.catalog.GetImage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.PresignGet(ctx, img.ObjectKey, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", img.ObjectKey, err)
	}
	img.URL = url
	return img, nil
}

// DecodeImageData decodes base64 image data. A "data:image/...;base64," prefix is stripped.
func DecodeImageData(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing image data", ErrInvalidImageData)
	}
	if strings.HasPrefix(encoded, "data:image") {
		_, rest, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImageData)
		}
		encoded = rest
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidImageData)
	}
	return data, nil
}
