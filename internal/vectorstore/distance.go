package vectorstore

import (
	"math"

	"github.com/coder/hnsw"
)

// DistanceMetric selects the similarity measure a namespace's HNSW graph is
// built with.
type DistanceMetric string

const (
	MetricCosine       DistanceMetric = "cosine"
	MetricEuclidean    DistanceMetric = "euclidean"
	MetricInnerProduct DistanceMetric = "inner_product"
	MetricManhattan    DistanceMetric = "manhattan"
)

// distanceFunc returns the raw distance function the underlying graph is
// configured with for a given metric. coder/hnsw ships Cosine and Euclidean
// directly; inner product and Manhattan are supplied here with a matching
// signature so the graph can be built against any of the four.
func distanceFunc(metric DistanceMetric) func(a, b []float32) float32 {
	switch metric {
	case MetricCosine:
		return hnsw.CosineDistance
	case MetricEuclidean:
		return hnsw.EuclideanDistance
	case MetricInnerProduct:
		return innerProductDistance
	case MetricManhattan:
		return manhattanDistance
	default:
		return hnsw.CosineDistance
	}
}

func innerProductDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

func manhattanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// distanceToScore maps a raw graph distance to a bounded similarity score:
// cosine distance is already in [0, 2], converted to a [-1, 1]-ish
// similarity via 1-d; euclidean/manhattan are
// unbounded, converted via 1/(1+d); inner product distance is the negated
// dot product, so negating it back recovers the raw dot-product score.
func distanceToScore(d float32, metric DistanceMetric) float32 {
	switch metric {
	case MetricCosine:
		return 1 - d
	case MetricEuclidean, MetricManhattan:
		return 1 / (1 + d)
	case MetricInnerProduct:
		return -d
	default:
		return 1 - d
	}
}

// normalizeVectorInPlace L2-normalizes a vector, required before inserting or
// querying against a cosine-distance graph.
func normalizeVectorInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
