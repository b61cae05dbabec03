package memory

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

// fakeEmbedder maps known strings to fixed vectors so similarity is
// deterministic in tests.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestStore(t *testing.T, embed *fakeEmbedder) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"), embed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLookup_EmptyCache(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})

	match, err := s.Lookup(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if match != nil {
		t.Errorf("Lookup() = %+v, want nil on empty cache", match)
	}
}

func TestRememberAndLookup(t *testing.T) {
	embed := &fakeEmbedder{vectors: map[string][]float32{
		"AWS Invoice April":   {1, 0, 0},
		"AWS Invoice May":     {0.95, 0.05, 0},
		"Team lunch downtown": {0, 1, 0},
	}}
	s := newTestStore(t, embed)

	ctx := context.Background()
	if err := s.Remember(ctx, "AWS Invoice April", "Software"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if err := s.Remember(ctx, "Team lunch downtown", "Meals"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	match, err := s.Lookup(ctx, "AWS Invoice May")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if match == nil {
		t.Fatal("Lookup() = nil, want a match")
	}
	if match.Category != "Software" {
		t.Errorf("Category = %q, want Software", match.Category)
	}
	if match.Score < 0.9 {
		t.Errorf("Score = %v, want > 0.9 for near-identical vectors", match.Score)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75, 0}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector() error = %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("element %d = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not divisible by 4")
	}
}
