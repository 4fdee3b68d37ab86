package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2 = %v, want [0.6 0.8]", v)
	}

	zero := []float32{0, 0, 0}
	NormalizeL2(zero)
	for _, x := range zero {
		if x != 0 {
			t.Fatalf("zero vector should be unchanged, got %v", zero)
		}
	}
}

func TestFloat64sToFloat32s(t *testing.T) {
	got := Float64sToFloat32s([]float64{0.5, -1})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Errorf("got %v", got)
	}
}
