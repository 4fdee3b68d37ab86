package vector

import (
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"unnormalized", []float32{3, 4}, []float32{6, 8}, 1},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
			rev, _ := CosineSimilarity(tt.b, tt.a)
			if rev != got {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); !errors.Is(err, ErrZeroNorm) {
		t.Errorf("zero query: error = %v", err)
	}
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{0, 0}); !errors.Is(err, ErrZeroNorm) {
		t.Errorf("zero candidate: error = %v", err)
	}
	nan := float32(math.NaN())
	if _, err := CosineSimilarity([]float32{nan, 0}, []float32{1, 0}); !errors.Is(err, ErrZeroNorm) {
		t.Errorf("NaN: error = %v", err)
	}
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatch: error = %v", err)
	}
	if _, err := CosineSimilarity(nil, nil); !errors.Is(err, ErrZeroNorm) {
		t.Errorf("empty: error = %v", err)
	}
}

func TestL2NormAndInnerProduct(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm = %v", got)
	}
	if got := InnerProduct([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("InnerProduct = %v", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched InnerProduct = %v", got)
	}
}
