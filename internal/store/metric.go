package store

import (
	"fmt"
	"math"

	"roserade/internal/config"
)

// Metric scores closeness between two vectors. Higher is always more
// similar, so every metric ranks with plain descending order. The metric is
// resolved from configuration once at startup; no per-call string dispatch.
type Metric interface {
	Name() string
	Score(a, b []float32) float64
}

// ParseMetric resolves a configured metric name into its implementation.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case config.MetricCosine:
		return Cosine(), nil
	case config.MetricEuclidean:
		return Euclidean(), nil
	case config.MetricDot:
		return Dot(), nil
	default:
		return nil, fmt.Errorf("unknown similarity metric %q", name)
	}
}

type cosineMetric struct{}

// Cosine returns the cosine-similarity metric, the default.
func Cosine() Metric { return cosineMetric{} }

func (cosineMetric) Name() string { return config.MetricCosine }

func (cosineMetric) Score(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type euclideanMetric struct{}

// Euclidean returns a similarity derived from euclidean distance,
// 1/(1+distance), so scores stay in (0, 1] and rank descending.
func Euclidean() Metric { return euclideanMetric{} }

func (euclideanMetric) Name() string { return config.MetricEuclidean }

func (euclideanMetric) Score(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

type dotMetric struct{}

// Dot returns the raw dot-product metric.
func Dot() Metric { return dotMetric{} }

func (dotMetric) Name() string { return config.MetricDot }

func (dotMetric) Score(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
