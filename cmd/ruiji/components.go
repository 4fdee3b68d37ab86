package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/awsconf"
	"github.com/hyperjump/ruiji/internal/blob"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/images"
	"github.com/hyperjump/ruiji/internal/metrics"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/similarity"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Catalog    *storage.SQLiteStorage
	Store      storage.EmbeddingStore
	Blobs      blob.Store
	Embedder   embedding.Embedder
	Embeddings *embedding.Service
	Images     *images.Service
	Ranker     *similarity.Ranker
	Metrics    *metrics.Recorder

	memory       *vector.MemoryStore
	snapshotPath string
	logger       *zap.Logger
}

// Close persists the in-memory embedding snapshot, if any, and releases all resources.
func (c *Components) Close() {
	if c.memory != nil && c.snapshotPath != "" {
		if err := c.memory.Save(c.snapshotPath); err != nil {
			c.logger.Warn("embedding snapshot save failed", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	if c.Store != nil && c.Store != storage.EmbeddingStore(c.Catalog) {
		_ = c.Store.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// awsLoader resolves the AWS configuration once, on first use.
type awsLoader struct {
	settings awsconf.Settings
	cfg      *aws.Config
}

func (l *awsLoader) get(ctx context.Context) (aws.Config, error) {
	if l.cfg != nil {
		return *l.cfg, nil
	}
	cfg, err := awsconf.Load(ctx, l.settings)
	if err != nil {
		return aws.Config{}, err
	}
	l.cfg = &cfg
	return cfg, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	ctx := context.Background()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{logger: logger, snapshotPath: cfg.Store.SnapshotPath}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	catalog, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Catalog = catalog

	if c.Store, err = newEmbeddingStore(ctx, cfg, c); err != nil {
		return nil, err
	}

	awsCfg := &awsLoader{settings: awsconf.Settings{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}}

	if c.Blobs, err = newBlobStore(ctx, cfg, awsCfg); err != nil {
		return nil, err
	}
	if c.Embedder, err = newEmbedder(ctx, cfg, awsCfg, logger); err != nil {
		return nil, err
	}
	generator, err := newGenerator(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.EnabledOrDefault() {
		c.Metrics = metrics.NewRecorder()
	}

	c.Embeddings = embedding.NewService(c.Store, catalog, c.Blobs, c.Embedder,
		embedding.WithServiceLogger(logger))

	rankOpts := []similarity.Option{
		similarity.WithLogger(logger),
		similarity.WithBatchSize(cfg.Similarity.BatchSize),
		similarity.WithTopK(cfg.Similarity.TopK),
		similarity.WithParallelism(cfg.Similarity.Parallelism),
	}
	if c.Metrics != nil {
		rankOpts = append(rankOpts, similarity.WithObserver(c.Metrics))
	}
	c.Ranker = similarity.NewRanker(c.Store, catalog, rankOpts...)

	imageOpts := []images.Option{
		images.WithLogger(logger),
		images.WithPresignTTL(cfg.Blob.PresignTTL),
	}
	if cfg.Images.EmbedOnCreate {
		embeddings := c.Embeddings
		imageOpts = append(imageOpts, images.WithCreateHook(func(ctx context.Context, img *models.Image) error {
			_, err := embeddings.GetOrGenerate(ctx, img.EmbeddingID)
			return err
		}))
	}
	c.Images = images.NewService(catalog, c.Blobs, generator, imageOpts...)

	logger.Info("components initialized",
		zap.String("store", cfg.Store.Type),
		zap.String("blob", cfg.Blob.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("embedding_dimensions", c.Embedder.Dimensions()),
		zap.String("generator", cfg.Images.Generator))
	ok = true
	return c, nil
}

func newEmbeddingStore(ctx context.Context, cfg *config.Config, c *Components) (storage.EmbeddingStore, error) {
	switch cfg.Store.Type {
	case "", "sqlite":
		return c.Catalog, nil
	case "memory":
		mem, err := vector.NewMemoryStore(cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory store: %w", err)
		}
		if err := mem.Load(cfg.Store.SnapshotPath); err != nil {
			c.logger.Warn("embedding snapshot load skipped", zap.String("path", cfg.Store.SnapshotPath), zap.Error(err))
		}
		c.memory = mem
		return mem, nil
	case "redis":
		r := cfg.Store.Redis
		store, err := storage.NewRedisEmbeddingStore(ctx, storage.RedisConfig{
			Address:   r.Address,
			Password:  r.Password,
			Database:  r.Database,
			KeyPrefix: r.KeyPrefix,
			Timeout:   r.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown embedding store type %q", cfg.Store.Type)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config, awsCfg *awsLoader) (blob.Store, error) {
	switch cfg.Blob.Type {
	case "s3":
		ac, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		return blob.NewS3Store(ac, cfg.Blob.Bucket, cfg.Blob.PathStyle)
	case "disk", "":
		return blob.NewDiskStore(cfg.Blob.Path)
	default:
		return nil, fmt.Errorf("unknown blob store type %q", cfg.Blob.Type)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config, awsCfg *awsLoader, logger *zap.Logger) (embedding.Embedder, error) {
	var base embedding.Embedder
	switch cfg.Embedding.Provider {
	case "bedrock":
		ac, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		e, err := embedding.NewBedrockEmbedder(bedrockruntime.NewFromConfig(ac), cfg.Embedding.Model, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		base = e
	case "onnx":
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			TextModelPath:   cfg.Embedding.TextModelPath,
			VisionModelPath: cfg.Embedding.VisionModelPath,
			Dimensions:      cfg.Embedding.Dimensions,
			LibraryPath:     cfg.Embedding.LibraryPath,
		})
		if err != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock embeddings", zap.Error(err))
			base = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			base = e
		}
	case "mock":
		base = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewCachedEmbedder(base, cfg.Embedding.CacheSize), nil
}

func newGenerator(ctx context.Context, cfg *config.Config, awsCfg *awsLoader) (images.Generator, error) {
	switch cfg.Images.Generator {
	case "bedrock":
		ac, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		return images.NewBedrockGenerator(bedrockruntime.NewFromConfig(ac), images.GeneratorConfig{
			Model:    cfg.Images.Model,
			Width:    cfg.Images.Width,
			Height:   cfg.Images.Height,
			CfgScale: cfg.Images.CfgScale,
			Quality:  cfg.Images.Quality,
		}), nil
	case "mock":
		return images.MockGenerator{Width: cfg.Images.Width, Height: cfg.Images.Height}, nil
	default:
		return nil, fmt.Errorf("unknown image generator %q", cfg.Images.Generator)
	}
}
