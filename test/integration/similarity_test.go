// Package integration provides end-to-end tests (requires real storage on disk).
package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ruiji/internal/blob"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/images"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/similarity"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

func TestIntegration_GenerateEmbedRank(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	catalog, err := storage.NewSQLiteStorage(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer catalog.Close()

	blobs, err := blob.NewDiskStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}

	store, err := vector.NewMemoryStore(8)
	if err != nil {
		t.Fatal(err)
	}

	embedder := embedding.NewMockEmbedder(8)
	defer embedder.Close()

	embeddings := embedding.NewService(store, catalog, blobs, embedder)
	svc := images.NewService(catalog, blobs, images.MockGenerator{Width: 16, Height: 16},
		images.WithCreateHook(func(ctx context.Context, img *models.Image) error {
			_, err := embeddings.GetOrGenerate(ctx, img.EmbeddingID)
			return err
		}))

	var ids []string
	for i := 0; i < 4; i++ {
		resp, err := svc.Generate(ctx, "a red barn")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.ImageID)
	}
	if _, err := svc.Generate(ctx, "a blue boat"); err != nil {
		t.Fatal(err)
	}

	results, err := similarity.NewRanker(store, catalog).Rank(ctx, ids[0], "a red barn")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// Candidates past the batch cap are never scored.
	capped, err := similarity.NewRanker(store, catalog, similarity.WithBatchSize(2)).Rank(ctx, ids[0], "a red barn")
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) != 2 {
		t.Fatalf("expected 2 capped results, got %d", len(capped))
	}
	for i, r := range results {
		if r.ImageID == ids[0] {
			t.Errorf("query image %s ranked against itself", ids[0])
		}
		if i > 0 && r.Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted: %+v", results)
		}
	}

	// Embeddings survive a snapshot round trip.
	snapshot := filepath.Join(dir, "embeddings.snapshot")
	if err := store.Save(snapshot); err != nil {
		t.Fatal(err)
	}
	reloaded, err := vector.NewMemoryStore(8)
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Load(snapshot); err != nil {
		t.Fatal(err)
	}
	again, err := similarity.NewRanker(reloaded, catalog).Rank(ctx, ids[0], "a red barn")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(results) {
		t.Fatalf("after reload: got %d results, want %d", len(again), len(results))
	}
	for i := range again {
		if again[i] != results[i] {
			t.Errorf("after reload result %d = %+v, want %+v", i, again[i], results[i])
		}
	}
}
