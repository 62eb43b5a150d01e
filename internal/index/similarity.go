package index

import (
	"errors"
	"math"
)

var errDimensionMismatch = errors.New("vectors must have the same dimension")

func dotProduct(vec1, vec2 []float32) float64 {
	var product float64
	for i := range vec1 {
		product += float64(vec1[i]) * float64(vec2[i])
	}
	return product
}

func magnitude(vec []float32) float64 {
	var sumOfSquares float64
	for _, val := range vec {
		sumOfSquares += float64(val) * float64(val)
	}
	return math.Sqrt(sumOfSquares)
}

// CosineSimilarity returns the cosine of the angle between two vectors. A zero
// vector has similarity 0 with everything.
func CosineSimilarity(vec1, vec2 []float32) (float64, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, errors.New("vectors cannot be empty")
	}
	if len(vec1) != len(vec2) {
		return 0, errDimensionMismatch
	}

	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)
	if mag1 == 0 || mag2 == 0 {
		return 0, nil
	}
	return dotProduct(vec1, vec2) / (mag1 * mag2), nil
}
