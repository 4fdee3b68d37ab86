package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/similarity"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

func BenchmarkCosineSimilarity(b *testing.B) {
	x := make([]float32, 1024)
	y := make([]float32, 1024)
	for i := range x {
		x[i] = float32(i) / 1024
		y[i] = float32(1024-i) / 1024
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = vector.CosineSimilarity(x, y)
	}
}

func BenchmarkRankSQLite(b *testing.B) {
	ctx := context.Background()
	catalog, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer catalog.Close()

	e := embedding.NewMockEmbedder(256)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("img-%d", i)
		if err := catalog.CreateImage(ctx, &models.Image{
			ID: id, Prompt: "benchmark", ModifiedPrompt: "benchmark", ObjectKey: id, EmbeddingID: id,
		}); err != nil {
			b.Fatal(err)
		}
		vec, _ := e.EmbedImage(ctx, []byte(id))
		if err := catalog.PutEmbedding(ctx, id, vec); err != nil {
			b.Fatal(err)
		}
	}
	ranker := similarity.NewRanker(catalog, catalog)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ranker.Rank(ctx, "img-0", "benchmark"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMockEmbedder_EmbedImage(b *testing.B) {
	e := embedding.NewMockEmbedder(512)
	ctx := context.Background()
	data := []byte("benchmark image bytes")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.EmbedImage(ctx, data)
	}
}
