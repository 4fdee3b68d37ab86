package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override config file values.
const (
	EnvBucket    = "RUIJI_BUCKET"
	EnvRegion    = "RUIJI_REGION"
	EnvDebug     = "RUIJI_DEBUG"
	EnvRedisAddr = "RUIJI_REDIS_ADDR"
)

// LoadEnvFile loads variables from a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides deployment settings from the environment.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvBucket); v != "" {
		cfg.Blob.Bucket = v
		cfg.Blob.Type = "s3"
	}
	if v := os.Getenv(EnvRegion); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Store.Redis.Address = v
		cfg.Store.Type = "redis"
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	return nil
}
