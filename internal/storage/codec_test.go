package storage

import (
	"math"
	"testing"
)

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0, 1, -1, 0.123456, float32(math.Inf(1))}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}
	if got := len(EncodeVector(in)); got != 4*len(in) {
		t.Errorf("encoded length = %d", got)
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
