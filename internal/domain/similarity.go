package domain

import "math"

// MaxCosineDistance is the upper bound of the store's cosine distance operator.
const MaxCosineDistance = 2.0

// SimilarityFromDistance maps a cosine distance in [0,2] to a similarity in [1,0].
func SimilarityFromDistance(distance float64) float64 {
	return 1 - distance/MaxCosineDistance
}

// MaxDistanceForThreshold translates a similarity threshold in [0,1] into the
// maximum cosine distance a hit may have. Filtering happens in distance space.
func MaxDistanceForThreshold(threshold float64) float64 {
	return (1 - threshold) * MaxCosineDistance
}

// CosineDistance returns 1 - cos(a, b), in [0,2].
// Zero vectors are treated as orthogonal to everything.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push |cos| slightly past 1
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
