package embed

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Zero-magnitude input (including the zero-vector fallback written when
// vectorization fails) is defined as similarity 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	for i := n; i < len(a); i++ {
		magA += float64(a[i]) * float64(a[i])
	}
	for i := n; i < len(b); i++ {
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Pad zero-pads vec to target length for storage schema compatibility.
// Longer vectors are truncated; that direction loses information and is a
// deliberate trade-off.
func Pad(vec []float32, target int) []float32 {
	if target <= 0 || len(vec) == target {
		return vec
	}
	if len(vec) > target {
		return vec[:target]
	}
	padded := make([]float32, target)
	copy(padded, vec)
	return padded
}

// Zero returns an all-zero vector of the given dimension, the well-defined
// fallback when embedding fails.
func Zero(dimension int) []float32 {
	return make([]float32, dimension)
}
