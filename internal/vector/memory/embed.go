package memory

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/utafrali/productsearch/internal/domain"
)

// DefaultDimension is the width of vectors produced by HashEmbedder.
const DefaultDimension = 128

// HashEmbedder is a deterministic bag-of-words embedder using feature
// hashing. It stands in for a model-backed embedder in development and tests:
// texts sharing words land close together.
type HashEmbedder struct {
	Dimension int
}

// Embed returns the L2-normalized feature-hashed vector of text.
func (h HashEmbedder) Embed(text string) []float32 {
	dim := h.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}
	vec := make([]float32, dim)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(w))
		sum := hasher.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%dim] += sign
	}
	return normalize(vec)
}

// productText is the text embedded for a catalog product.
func productText(p *domain.Product) string {
	parts := []string{p.Name, p.Name, p.Description, p.CategoryName, p.VendorName}
	parts = append(parts, p.Tags...)
	return strings.Join(parts, " ")
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 for
// mismatched or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
