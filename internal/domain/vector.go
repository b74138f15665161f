package domain

import "math"

// NonMatching is the similarity assigned to vectors that cannot be
// compared: zero-norm (malformed embedding) or mismatched dimensions.
// Any threshold above -1 excludes such candidates without a division
// error.
const NonMatching = -1.0

// CosineSimilarity returns the normalized dot product of a and b,
// in [-1, 1]. Vectors are stored as float32 (the wire format of the
// embedding API); the accumulation runs in float64.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return NonMatching
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
		return NonMatching
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
