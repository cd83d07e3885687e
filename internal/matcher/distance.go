package matcher

import "math"

// Euclidean returns the L2 distance between a and b. Vectors of different
// length are infinitely far apart.
func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Cosine returns 1 - cosine similarity, in [0, 2].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp rounding error
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1 - similarity
}

// MetricByName maps a configured metric name to its function.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "", "euclidean":
		return Euclidean, true
	case "cosine":
		return Cosine, true
	}
	return nil, false
}
