package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "red fox")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.EmbedText(ctx, "red fox")
	c, _ := e.EmbedText(ctx, "blue whale")
	if len(a) != 16 {
		t.Fatalf("len=%d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should give same embedding")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different text should give different embedding")
	}

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("embedding not unit length: %f", sum)
	}
}

func TestMockEmbedder_EmptyInput(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 512 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
	if _, err := e.EmbedText(context.Background(), ""); err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := e.EmbedImage(context.Background(), nil); err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}
