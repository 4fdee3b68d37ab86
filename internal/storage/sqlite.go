// Package storage provides a SQLite implementation of the catalog and embedding store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ruiji/internal/models"
)

// SQLiteStorage implements ImageCatalog and EmbeddingStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		modified_prompt TEXT,
		object_key TEXT NOT NULL,
		embedding_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_prompt ON images(prompt);

	CREATE TABLE IF NOT EXISTS inbox_files (
		path TEXT PRIMARY KEY,
		mod_time INTEGER NOT NULL,
		size INTEGER NOT NULL,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateImage inserts an image record. CreatedAt is set when zero.
func (s *SQLiteStorage) CreateImage(ctx context.Context, img *models.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (id, prompt, modified_prompt, object_key, embedding_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.Prompt, img.ModifiedPrompt, img.ObjectKey, img.EmbeddingID, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert image %s: %w", img.ID, err)
	}
	return nil
}

// GetImage returns an image record by ID.
func (s *SQLiteStorage) GetImage(ctx context.Context, id string) (*models.Image, error) {
	var img models.Image
	var modified sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, modified_prompt, object_key, embedding_id, created_at
		 FROM images WHERE id = ?`, id,
	).Scan(&img.ID, &img.Prompt, &modified, &img.ObjectKey, &img.EmbeddingID, &img.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	img.ModifiedPrompt = modified.String
	return &img, nil
}

// QueryByPrompt returns the images whose prompt equals prompt, in insertion order.
func (s *SQLiteStorage) QueryByPrompt(ctx context.Context, prompt string) ([]models.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding_id FROM images WHERE prompt = ? ORDER BY rowid`, prompt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CatalogEntry
	for rows.Next() {
		var e models.CatalogEntry
		if err := rows.Scan(&e.ImageID, &e.EmbeddingID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListImages returns image records, newest first.
func (s *SQLiteStorage) ListImages(ctx context.Context, offset, limit int) ([]*models.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, modified_prompt, object_key, embedding_id, created_at
		 FROM images ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		var img models.Image
		var modified sql.NullString
		if err := rows.Scan(&img.ID, &img.Prompt, &modified, &img.ObjectKey, &img.EmbeddingID, &img.CreatedAt); err != nil {
			return nil, err
		}
		img.ModifiedPrompt = modified.String
		images = append(images, &img)
	}
	return images, rows.Err()
}

// CountImages returns the total number of image records.
func (s *SQLiteStorage) CountImages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&count)
	return count, err
}

// GetEmbedding returns the embedding stored under id.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return DecodeVector(blob)
}

// BatchGetEmbeddings returns the embeddings found among ids in a single query.
func (s *SQLiteStorage) BatchGetEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if err := CheckBatch(ids); err != nil {
		return nil, err
	}
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector FROM embeddings WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// PutEmbedding inserts vec under id; an existing row wins.
func (s *SQLiteStorage) PutEmbedding(ctx context.Context, id string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO embeddings (id, dimensions, vector, created_at) VALUES (?, ?, ?, ?)`,
		id, len(vec), EncodeVector(vec), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert embedding %s: %w", id, err)
	}
	return nil
}

// CountEmbeddings returns the total number of stored embeddings.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// WasIngested reports whether the inbox already ingested the file at path with this
// modification time and size.
func (s *SQLiteStorage) WasIngested(ctx context.Context, path string, modTime time.Time, size int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbox_files WHERE path = ? AND mod_time = ? AND size = ?`,
		path, modTime.UnixNano(), size,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up inbox file: %w", err)
	}
	return n > 0, nil
}

// RecordIngest stores the version of the file at path that the inbox ingested.
func (s *SQLiteStorage) RecordIngest(ctx context.Context, path string, modTime time.Time, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO inbox_files (path, mod_time, size, ingested_at) VALUES (?, ?, ?, ?)`,
		path, modTime.UnixNano(), size, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record inbox file: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
