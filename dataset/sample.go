package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/pkg/errors"
)

// ClassSample binds a point to an integer class index for classification
// training.
type ClassSample struct {
	Point *Point
	Class int
}

// RegSample binds a point to a real-valued target for regression training.
type RegSample struct {
	Point *Point
	Target float64
}

// WeightSum returns the total weight of the samples.
func WeightSum(samples []ClassSample) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s.Point.Weight()
	}
	return sum
}

// ByClass partitions samples into per-class subsets. Classes without samples
// yield empty (nil) subsets.
func ByClass(samples []ClassSample, numClasses int) [][]ClassSample {
	parts := make([][]ClassSample, numClasses)
	for _, s := range samples {
		parts[s.Class] = append(parts[s.Class], s)
	}
	return parts
}

// PriorDistribution returns the weighted class-probability vector of the
// samples. An empty or zero-weight set yields a uniform distribution.
func PriorDistribution(samples []ClassSample, numClasses int) []float64 {
	probs := make([]float64, numClasses)
	total := 0.0
	for _, s := range samples {
		probs[s.Class] += s.Point.Weight()
		total += s.Point.Weight()
	}
	if total <= 0 {
		for i := range probs {
			probs[i] = 1.0 / float64(numClasses)
		}
		return probs
	}
	for i := range probs {
		probs[i] /= total
	}
	return probs
}

// WeightedMean returns the weighted mean target of regression samples.
// A zero-weight set yields 0.
func WeightedMean(samples []RegSample) float64 {
	sum, total := 0.0, 0.0
	for _, s := range samples {
		w := s.Point.Weight()
		sum += w * s.Target
		total += w
	}
	if total <= 0 {
		return 0
	}
	return sum / total
}

// WeightedVariance returns the weighted mean and the weighted variance of the
// regression targets. A zero-weight set yields (0, 0).
func WeightedVariance(samples []RegSample) (mean, variance float64) {
	total := 0.0
	for _, s := range samples {
		w := s.Point.Weight()
		mean += w * s.Target
		total += w
	}
	if total <= 0 {
		return 0, 0
	}
	mean /= total
	for _, s := range samples {
		d := s.Target - mean
		variance += s.Point.Weight() * d * d
	}
	variance /= total
	return mean, variance
}

// FromMatrix converts a gonum matrix and pre-encoded class ids into
// unit-weight numeric samples. It is the bridge between the mat-based public
// Fit surface and the sample-based training core.
func FromMatrix(X mat.Matrix, yIDs []int) ([]ClassSample, error) {
	rows, cols := X.Dims()
	if rows != len(yIDs) {
		return nil, errors.NewDimensionError("dataset.FromMatrix", rows, len(yIDs), 0)
	}

	samples := make([]ClassSample, rows)
	for i := 0; i < rows; i++ {
		values := make([]float64, cols)
		for j := 0; j < cols; j++ {
			values[j] = X.At(i, j)
		}
		samples[i] = ClassSample{Point: NewNumericPoint(values), Class: yIDs[i]}
	}
	return samples, nil
}

// RegressionFromMatrix converts a gonum matrix and a target column vector into
// unit-weight numeric regression samples.
func RegressionFromMatrix(X mat.Matrix, y mat.Matrix) ([]RegSample, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return nil, errors.NewDimensionError("dataset.RegressionFromMatrix", rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError("dataset.RegressionFromMatrix", 1, yCols, 1)
	}

	samples := make([]RegSample, rows)
	for i := 0; i < rows; i++ {
		values := make([]float64, cols)
		for j := 0; j < cols; j++ {
			values[j] = X.At(i, j)
		}
		samples[i] = RegSample{Point: NewNumericPoint(values), Target: y.At(i, 0)}
	}
	return samples, nil
}

// PointsFromMatrix converts matrix rows into unit-weight numeric points for
// prediction.
func PointsFromMatrix(X mat.Matrix) []*Point {
	rows, cols := X.Dims()
	points := make([]*Point, rows)
	for i := 0; i < rows; i++ {
		values := make([]float64, cols)
		for j := 0; j < cols; j++ {
			values[j] = X.At(i, j)
		}
		points[i] = NewNumericPoint(values)
	}
	return points
}
