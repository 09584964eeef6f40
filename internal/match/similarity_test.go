package match

import (
	"errors"
	"math"
	"testing"

	"flipper/internal/model"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		u, v []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 2}, 0},
		{"scale invariant", []float64{1, 2}, []float64{10, 20}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.u, tt.v)
			if err != nil {
				t.Fatalf("Cosine: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	if _, err := Cosine([]float64{1, 2}, []float64{1, 2, 3}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAverageEmbeddings(t *testing.T) {
	avg, err := AverageEmbeddings([][]float64{{1, 2, 3}, {3, 4, 5}})
	if err != nil {
		t.Fatalf("AverageEmbeddings: %v", err)
	}
	want := []float64{2, 3, 4}
	for i := range want {
		if math.Abs(avg[i]-want[i]) > 1e-9 {
			t.Fatalf("avg[%d] = %v, want %v", i, avg[i], want[i])
		}
	}
}

func TestAverageEmbeddingsErrors(t *testing.T) {
	if _, err := AverageEmbeddings(nil); !errors.Is(err, ErrEmptyEmbeddings) {
		t.Fatalf("empty input: err = %v, want ErrEmptyEmbeddings", err)
	}
	if _, err := AverageEmbeddings([][]float64{{1, 2}, {1, 2, 3}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("ragged input: err = %v, want ErrDimensionMismatch", err)
	}
}

func TestRankBySimilarity(t *testing.T) {
	products := []model.Product{
		{ID: "exact", Embedding: []float64{1, 0}},
		{ID: "close", Embedding: []float64{0.9, 0.1}},
		{ID: "far", Embedding: []float64{0, 1}},
		{ID: "no-embedding"},
		{ID: "wrong-dim", Embedding: []float64{1, 0, 0}},
	}

	got := RankBySimilarity(products, []float64{1, 0}, DefaultSimilarityThreshold)

	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Product.ID != "exact" || got[1].Product.ID != "close" {
		t.Fatalf("unexpected order: %s, %s", got[0].Product.ID, got[1].Product.ID)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Fatalf("results not sorted by similarity descending")
	}
	for _, m := range got {
		if m.Similarity < DefaultSimilarityThreshold {
			t.Fatalf("match %s below threshold: %v", m.Product.ID, m.Similarity)
		}
	}
}

func TestRankBySimilarityNoHits(t *testing.T) {
	products := []model.Product{{ID: "a", Embedding: []float64{0, 1}}}
	got := RankBySimilarity(products, []float64{1, 0}, DefaultSimilarityThreshold)
	if len(got) != 0 {
		t.Fatalf("got %d matches, want 0", len(got))
	}
}
