package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Images(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	img := &models.Image{
		ID:             "img1",
		Prompt:         "a lighthouse",
		ModifiedPrompt: "a lighthouse, from above, watercolor",
		ObjectKey:      "images/img1.png",
		EmbeddingID:    "img1",
	}
	if err := store.CreateImage(ctx, img); err != nil {
		t.Fatal(err)
	}
	if img.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetImage(ctx, "img1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "a lighthouse" || got.ObjectKey != "images/img1.png" || got.ModifiedPrompt != img.ModifiedPrompt {
		t.Errorf("got %+v", got)
	}

	if _, err := store.GetImage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetImage(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.CreateImage(ctx, img); err == nil {
		t.Error("duplicate image id should fail")
	}

	list, err := store.ListImages(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 image, got %d", len(list))
	}
	n, err := store.CountImages(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountImages = %d, %v", n, err)
	}
}

func TestSQLiteStorage_QueryByPromptKeepsInsertionOrder(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := store.CreateImage(ctx, &models.Image{ID: id, Prompt: "fox", ObjectKey: id, EmbeddingID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CreateImage(ctx, &models.Image{ID: "other", Prompt: "fox ", ObjectKey: "o", EmbeddingID: "other"}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.QueryByPrompt(ctx, "fox")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(entries))
	}
	for i, e := range entries {
		if e.ImageID != ids[i] || e.EmbeddingID != ids[i] {
			t.Errorf("entry %d = %+v, want %s", i, e, ids[i])
		}
	}

	none, err := store.QueryByPrompt(ctx, "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no entries, got %v", none)
	}
}

func TestSQLiteStorage_Embeddings(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.PutEmbedding(ctx, "e1", []float32{1, 0, 0.5}); err != nil {
		t.Fatal(err)
	}
	// insert-only: the second write is ignored
	if err := store.PutEmbedding(ctx, "e1", []float32{9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEmbedding(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 0.5 {
		t.Errorf("GetEmbedding = %v", got)
	}
	if _, err := store.GetEmbedding(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEmbedding(nope) error = %v, want ErrNotFound", err)
	}

	if err := store.PutEmbedding(ctx, "e2", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	batch, err := store.BatchGetEmbeddings(ctx, []string{"e1", "missing", "e2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(batch))
	}
	if _, ok := batch["missing"]; ok {
		t.Error("missing id should be absent")
	}

	empty, err := store.BatchGetEmbeddings(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch = %v, %v", empty, err)
	}

	n, err := store.CountEmbeddings(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountEmbeddings = %d, %v", n, err)
	}
}

func TestSQLiteStorage_BatchTooLarge(t *testing.T) {
	store := newTestStorage(t)
	ids := make([]string, MaxBatchGetKeys+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	if _, err := store.BatchGetEmbeddings(context.Background(), ids); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("error = %v, want ErrBatchTooLarge", err)
	}
	if _, err := store.BatchGetEmbeddings(context.Background(), ids[:MaxBatchGetKeys]); err != nil {
		t.Errorf("batch of exactly %d should succeed: %v", MaxBatchGetKeys, err)
	}
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.PutEmbedding(ctx, "x", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetEmbedding(ctx, "x"); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStorage_InboxLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	mtime := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.UTC)

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	seen, err := store.WasIngested(ctx, "/inbox/a.png", mtime, 42)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("new file reported as ingested")
	}
	if err := store.RecordIngest(ctx, "/inbox/a.png", mtime, 42); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tests := []struct {
		name  string
		path  string
		mtime time.Time
		size  int64
		want  bool
	}{
		{"same version", "/inbox/a.png", mtime, 42, true},
		{"size changed", "/inbox/a.png", mtime, 43, false},
		{"modified later", "/inbox/a.png", mtime.Add(time.Second), 42, false},
		{"other file", "/inbox/b.png", mtime, 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.WasIngested(ctx, tt.path, tt.mtime, tt.size)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("WasIngested() = %v, want %v", got, tt.want)
			}
		})
	}

	// A rewritten file replaces the recorded version.
	if err := store.RecordIngest(ctx, "/inbox/a.png", mtime, 43); err != nil {
		t.Fatal(err)
	}
	if seen, _ := store.WasIngested(ctx, "/inbox/a.png", mtime, 42); seen {
		t.Error("old version still recorded after rewrite")
	}
}
