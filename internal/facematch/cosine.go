package facematch

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, computed
// over their common prefix. It is exactly 0 when either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
