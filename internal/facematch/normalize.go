package facematch

import "math"

// L2Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	norm := norm(v)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
