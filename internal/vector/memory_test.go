package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/ruiji/internal/storage"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store, err := NewMemoryStore(3)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.PutEmbedding(ctx, "a", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutEmbedding(ctx, "b", []float32{0.9, 0.1, 0}); err != nil {
		t.Fatal(err)
	}
	if store.Size() != 2 {
		t.Errorf("Size=%d", store.Size())
	}

	got, err := store.GetEmbedding(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	// returned slices are copies
	got[0] = 42
	again, _ := store.GetEmbedding(ctx, "a")
	if again[0] != 1 {
		t.Errorf("store mutated through returned slice: %v", again)
	}

	if _, err := store.GetEmbedding(ctx, "zzz"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_InsertOnly(t *testing.T) {
	store, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = store.PutEmbedding(ctx, "x", []float32{1, 0})
	_ = store.PutEmbedding(ctx, "x", []float32{0, 1})
	got, _ := store.GetEmbedding(ctx, "x")
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("second put should be ignored, got %v", got)
	}
	if store.Size() != 1 {
		t.Errorf("Size=%d, want 1", store.Size())
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	store, _ := NewMemoryStore(2)
	err := store.PutEmbedding(context.Background(), "x", []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := NewMemoryStore(0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestMemoryStore_BatchGet(t *testing.T) {
	store, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = store.PutEmbedding(ctx, "x", []float32{1, 0})
	_ = store.PutEmbedding(ctx, "y", []float32{0, 1})

	got, err := store.BatchGetEmbeddings(ctx, []string{"y", "missing", "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key should be absent")
	}

	tooMany := make([]string, storage.MaxBatchGetKeys+1)
	if _, err := store.BatchGetEmbeddings(ctx, tooMany); !errors.Is(err, storage.ErrBatchTooLarge) {
		t.Errorf("error = %v, want ErrBatchTooLarge", err)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "embeddings.bin")
	ctx := context.Background()

	store, _ := NewMemoryStore(2)
	_ = store.PutEmbedding(ctx, "first", []float32{0.6, 0.8})
	_ = store.PutEmbedding(ctx, "second", []float32{-1, 0})
	if err := store.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryStore(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded Size=%d", loaded.Size())
	}
	got, err := loaded.GetEmbedding(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0.6 || got[1] != 0.8 {
		t.Errorf("loaded vector = %v", got)
	}

	wrongDim, _ := NewMemoryStore(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}

	missing, _ := NewMemoryStore(2)
	if err := missing.Load(filepath.Join(t.TempDir(), "nope.bin")); err != nil {
		t.Errorf("missing snapshot should be ignored: %v", err)
	}
}

func TestMemoryStore_LoadRejectsOversizedID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	var header []byte
	for _, v := range []uint32{2, 1, 0xFFFFFFF0} {
		header = binary.LittleEndian.AppendUint32(header, v)
	}
	if err := os.WriteFile(path, header, 0644); err != nil {
		t.Fatal(err)
	}

	store, _ := NewMemoryStore(2)
	_ = store.PutEmbedding(context.Background(), "kept", []float32{1, 0})
	err := store.Load(path)
	if err == nil || !strings.Contains(err.Error(), "id length") {
		t.Fatalf("Load() error = %v, want id length error", err)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d after failed load, want 1", store.Size())
	}
}

func TestMemoryStore_PutRejectsOversizedID(t *testing.T) {
	store, _ := NewMemoryStore(2)
	if err := store.PutEmbedding(context.Background(), strings.Repeat("x", MaxIDLength+1), []float32{1, 0}); err == nil {
		t.Error("expected error for oversized id")
	}
	if err := store.PutEmbedding(context.Background(), strings.Repeat("x", MaxIDLength), []float32{1, 0}); err != nil {
		t.Errorf("id at the limit: %v", err)
	}
}
