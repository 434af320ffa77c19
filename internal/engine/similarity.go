package engine

import "math"

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns 0 when the vectors have different lengths or either has
// zero norm; those cases mean "no meaningful comparison", not an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
