package config

import "time"

// MaxBatchSize is the largest candidate batch the embedding stores accept.
const MaxBatchSize = 100

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ruiji/data/db/catalog.db"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	if cfg.Store.Type == "redis" && cfg.Store.Redis.Address == "" {
		cfg.Store.Redis.Address = "localhost:6379"
	}
	if cfg.Store.Redis.Timeout == 0 {
		cfg.Store.Redis.Timeout = 5 * time.Second
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Blob.Type == "" {
		if cfg.Blob.Bucket != "" {
			cfg.Blob.Type = "s3"
		} else {
			cfg.Blob.Type = "disk"
		}
	}
	if cfg.Blob.Type == "disk" && cfg.Blob.Path == "" {
		cfg.Blob.Path = "/usr/local/var/ruiji/data/blobs"
	}
	if cfg.Blob.PresignTTL == 0 {
		cfg.Blob.PresignTTL = time.Hour
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "bedrock"
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "onnx", "mock":
			cfg.Embedding.Dimensions = 512
		default:
			cfg.Embedding.Dimensions = 1024
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Images.Generator == "" {
		cfg.Images.Generator = "bedrock"
	}
	if cfg.Images.Width == 0 {
		cfg.Images.Width = 704
	}
	if cfg.Images.Height == 0 {
		cfg.Images.Height = 320
	}
	if cfg.Images.CfgScale == 0 {
		cfg.Images.CfgScale = 8.0
	}
	if cfg.Images.Quality == "" {
		cfg.Images.Quality = "standard"
	}
	if cfg.Similarity.BatchSize <= 0 || cfg.Similarity.BatchSize > MaxBatchSize {
		cfg.Similarity.BatchSize = MaxBatchSize
	}
	if cfg.Similarity.TopK <= 0 {
		cfg.Similarity.TopK = 10
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".png", ".jpg", ".jpeg"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
