package vector

import "math"

// CosineSimilarity calculates cosine similarity between two vectors.
// Mismatched lengths, empty vectors and zero-magnitude vectors all yield
// exactly 0: no signal rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance calculates cosine distance (1 - cosine similarity)
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
