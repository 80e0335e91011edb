package tree

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/dataset"
)

func TestExtraTreeClassifierFit(t *testing.T) {
	X, y := blobs2D(50)
	clf := NewExtraTreeClassifier(WithSeed(3))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !clf.IsFitted() {
		t.Fatal("tree not marked fitted")
	}
	if got := clf.Score(X, y); got < 0.95 {
		t.Errorf("training accuracy = %f, want near 1", got)
	}
}

func TestExtraTreeProbaSumsToOne(t *testing.T) {
	X, y := blobs2D(30)
	clf := NewExtraTreeClassifier(WithSeed(11))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	rows, cols := proba.Dims()
	for i := 0; i < rows; i++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += proba.At(i, c)
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %f", i, sum)
		}
	}
}

func TestExtraTreeDeterministicSeed(t *testing.T) {
	X, y := blobs2D(40)
	fit := func() mat.Matrix {
		clf := NewExtraTreeClassifier(WithSeed(99), WithSelectionCount(2))
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		pred, err := clf.Predict(X)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		return pred
	}

	a, b := fit(), fit()
	rows, _ := a.Dims()
	for i := 0; i < rows; i++ {
		if a.At(i, 0) != b.At(i, 0) {
			t.Fatalf("same seed produced different predictions at row %d", i)
		}
	}
}

func TestExtraTreeStopSize(t *testing.T) {
	X, y := blobs2D(50)
	clf := NewExtraTreeClassifier(WithStopSize(100), WithSeed(5))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := clf.GetNLeaves(); got != 1 {
		t.Errorf("stop size above sample count must give one leaf, got %d", got)
	}
}

func TestExtraTreeInvalidConfig(t *testing.T) {
	X, y := blobs2D(10)
	if err := NewExtraTreeClassifier(WithStopSize(0)).Fit(X, y); err == nil {
		t.Error("stop size 0 must be rejected")
	}
	if err := NewExtraTreeClassifier(WithSelectionCount(0)).Fit(X, y); err == nil {
		t.Error("selection count 0 must be rejected")
	}
}

func TestExtraTreeCategorical(t *testing.T) {
	info := []dataset.CategoricalInfo{{Name: "bucket", Values: make([]string, 4)}}
	samples := make([]dataset.ClassSample, 0, 120)
	for i := 0; i < 30; i++ {
		for v := 0; v < 4; v++ {
			p, err := dataset.NewPoint(nil, []int{v}, info, 1.0)
			if err != nil {
				t.Fatalf("NewPoint failed: %v", err)
			}
			samples = append(samples, dataset.ClassSample{Point: p, Class: v % 2})
		}
	}

	clf := NewExtraTreeClassifier(WithSeed(17))
	if err := clf.FitSamples(samples, 2); err != nil {
		t.Fatalf("FitSamples failed: %v", err)
	}
	p, _ := dataset.NewPoint(nil, []int{1}, info, 1.0)
	probs, err := clf.PredictPoint(p)
	if err != nil {
		t.Fatalf("PredictPoint failed: %v", err)
	}
	if probs[1] < probs[0] {
		t.Errorf("odd bucket not classified as class 1: %v", probs)
	}
}

func TestExtraTreeRegressorFit(t *testing.T) {
	n := 120
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i < n/2 {
			y.Set(i, 0, -3.0)
		} else {
			y.Set(i, 0, 3.0)
		}
	}

	reg := NewExtraTreeRegressor(WithSeed(23))
	if err := reg.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := reg.Score(X, y); got < 0.9 {
		t.Errorf("R^2 = %f, want near 1", got)
	}
}
