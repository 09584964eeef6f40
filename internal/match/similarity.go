package match

import (
	"errors"
	"math"
	"sort"

	"flipper/internal/model"
)

// DefaultSimilarityThreshold 图搜的默认相似度下限。
// 经验常量，可通过配置覆盖。
const DefaultSimilarityThreshold = 0.65

var (
	ErrEmptyEmbeddings   = errors.New("no embeddings to average")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SimilarityMatch 图搜命中的商品及其相似度。
type SimilarityMatch struct {
	Product    model.Product `json:"product"`
	Similarity float64       `json:"similarity"`
}

// Cosine 计算两个等长向量的余弦相似度，取值范围 [-1, 1]。
//
// 约定零向量与任何向量的相似度为 0（避免除零），维度不一致返回错误。
func Cosine(u, v []float64) (float64, error) {
	if len(u) != len(v) {
		return 0, ErrDimensionMismatch
	}

	var dot, normU, normV float64
	for i := range u {
		dot += u[i] * v[i]
		normU += u[i] * u[i]
		normV += v[i] * v[i]
	}
	if normU == 0 || normV == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normU) * math.Sqrt(normV)), nil
}

// AverageEmbeddings 对 N 个等长向量逐元素求均值，
// 用于把多图商品归并为单个代表向量。
func AverageEmbeddings(embeddings [][]float64) ([]float64, error) {
	if len(embeddings) == 0 {
		return nil, ErrEmptyEmbeddings
	}

	dim := len(embeddings[0])
	avg := make([]float64, dim)
	for _, emb := range embeddings {
		if len(emb) != dim {
			return nil, ErrDimensionMismatch
		}
		for i, x := range emb {
			avg[i] += x
		}
	}
	n := float64(len(embeddings))
	for i := range avg {
		avg[i] /= n
	}
	return avg, nil
}

// RankBySimilarity 对已取回的商品集合按与查询向量的余弦相似度降序排序。
//
// 缺少向量或维度不一致的商品直接跳过；只保留相似度 >= threshold 的结果。
// 无命中返回空切片（不是错误）。
func RankBySimilarity(products []model.Product, query []float64, threshold float64) []SimilarityMatch {
	matches := make([]SimilarityMatch, 0)
	for _, p := range products {
		if len(p.Embedding) == 0 || len(p.Embedding) != len(query) {
			continue
		}
		sim, err := Cosine(query, p.Embedding)
		if err != nil {
			continue
		}
		if sim >= threshold {
			matches = append(matches, SimilarityMatch{Product: p, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}
