package embed

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a       []float32
		b       []float32
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "scaled copies", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1},
		{name: "dimension mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, wantErr: true},
		{name: "empty vectors", a: []float32{}, b: []float32{}, wantErr: true},
		{name: "zero magnitude", a: []float32{0, 0}, b: []float32{1, 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-5 {
				t.Fatalf("unexpected similarity: got %g, want %g", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{3, 4})
	want := []float32{0.6, 0.8}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Fatalf("unexpected normalized vector: got %v, want %v", got, want)
		}
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatalf("expected zero vector unchanged, got %v", zero)
	}
}

func TestCombine(t *testing.T) {
	got, err := Combine([][]float32{{1, 0}, {0, 1}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(got[0]-want)) > 1e-5 || math.Abs(float64(got[1]-want)) > 1e-5 {
		t.Fatalf("unexpected combined vector: got %v", got)
	}

	if _, err := Combine(nil, nil); err == nil {
		t.Fatal("expected error for no vectors, got nil")
	}
	if _, err := Combine([][]float32{{1, 0}, {1, 0, 0}}, nil); err == nil {
		t.Fatal("expected error for dimension mismatch, got nil")
	}
	if _, err := Combine([][]float32{{1, 0}}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for weight count mismatch, got nil")
	}
}

func TestCombineWeighted(t *testing.T) {
	got, err := Combine([][]float32{{1, 0}, {0, 1}}, []float64{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(float64(got[0]-1)) > 1e-5 || math.Abs(float64(got[1])) > 1e-5 {
		t.Fatalf("unexpected weighted result: got %v", got)
	}
}
