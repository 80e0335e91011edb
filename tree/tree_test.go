package tree

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/dataset"
)

// blobs2D builds two well separated 2-D clusters, n points each, labels 0
// and 1.
func blobs2D(n int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(2*n, 2, nil)
	y := mat.NewDense(2*n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(2*i, 0, -2+0.1*float64(i%7))
		X.Set(2*i, 1, -2+0.13*float64(i%5))
		y.Set(2*i, 0, 0)
		X.Set(2*i+1, 0, 2+0.1*float64(i%7))
		X.Set(2*i+1, 1, 2+0.13*float64(i%5))
		y.Set(2*i+1, 0, 1)
	}
	return X, y
}

func TestDecisionTreeClassifierFit(t *testing.T) {
	X, y := blobs2D(30)
	clf := NewDecisionTreeClassifier(WithCriterion("gini"))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !clf.IsFitted() {
		t.Fatal("tree not marked fitted")
	}
	if clf.NClasses() != 2 {
		t.Errorf("NClasses = %d, want 2", clf.NClasses())
	}
	if got := clf.Score(X, y); got != 1.0 {
		t.Errorf("training accuracy = %f, want 1.0", got)
	}
	if clf.GetDepth() < 1 {
		t.Errorf("depth = %d, want at least 1", clf.GetDepth())
	}
}

func TestDecisionTreeClassifierEntropy(t *testing.T) {
	X, y := blobs2D(30)
	clf := NewDecisionTreeClassifier(WithCriterion("entropy"))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := clf.Score(X, y); got != 1.0 {
		t.Errorf("training accuracy = %f, want 1.0", got)
	}
}

func TestPredictProbaSumsToOne(t *testing.T) {
	X, y := blobs2D(25)
	clf := NewDecisionTreeClassifier()
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	proba, err := clf.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	rows, cols := proba.Dims()
	if cols != 2 {
		t.Fatalf("proba cols = %d, want 2", cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			p := proba.At(i, c)
			if p < 0 || p > 1 {
				t.Fatalf("probability out of range at (%d,%d): %f", i, c, p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %f", i, sum)
		}
	}
}

func TestPredictBeforeFit(t *testing.T) {
	clf := NewDecisionTreeClassifier()
	if _, err := clf.Predict(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("Predict before Fit must fail")
	}
	reg := NewDecisionTreeRegressor()
	if _, err := reg.Predict(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("regressor Predict before Fit must fail")
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	X, y := blobs2D(20)
	clf := NewDecisionTreeClassifier()
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if _, err := clf.Predict(mat.NewDense(3, 5, nil)); err == nil {
		t.Error("expected dimension error for mismatched feature count")
	}
}

func TestMaxDepthLimit(t *testing.T) {
	X, y := blobs2D(40)
	clf := NewDecisionTreeClassifier(WithMaxDepth(1))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := clf.GetDepth(); got > 1 {
		t.Errorf("depth = %d, want at most 1", got)
	}

	stumped := NewDecisionTreeClassifier(WithMaxDepth(0))
	if err := stumped.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := stumped.GetDepth(); got != 0 {
		t.Errorf("maxDepth 0 depth = %d, want 0", got)
	}
	if got := stumped.GetNLeaves(); got != 1 {
		t.Errorf("maxDepth 0 leaves = %d, want 1", got)
	}
}

func TestInvalidOptionsRejected(t *testing.T) {
	X, y := blobs2D(10)
	cases := map[string]*DecisionTreeClassifier{
		"min samples":     NewDecisionTreeClassifier(WithMinSamplesSplit(1)),
		"split size":      NewDecisionTreeClassifier(WithMinResultSplitSize(1)),
		"criterion":       NewDecisionTreeClassifier(WithCriterion("nope")),
		"test proportion": NewDecisionTreeClassifier(WithPruning(PruneReducedError), WithTestProportion(1.5)),
	}
	for name, clf := range cases {
		if err := clf.Fit(X, y); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	reg := NewDecisionTreeRegressor(WithPruning(PruneErrorBased))
	if err := reg.Fit(X, y); err == nil {
		t.Error("error-based pruning on a regressor must be rejected")
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	X, y := blobs2D(40)
	grid := mat.NewDense(9, 2, []float64{
		-2, -2, -2, 0, -2, 2,
		0, -2, 0, 0, 0, 2,
		2, -2, 2, 0, 2, 2,
	})

	fit := func() mat.Matrix {
		clf := NewDecisionTreeClassifier(WithMaxFeatures(1), WithSeed(42))
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		pred, err := clf.Predict(grid)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		return pred
	}

	a, b := fit(), fit()
	for i := 0; i < 9; i++ {
		if a.At(i, 0) != b.At(i, 0) {
			t.Fatalf("same seed produced different predictions at row %d", i)
		}
	}
}

func TestCategoricalFeatureRemovedAfterSplit(t *testing.T) {
	// One categorical feature fully determines the class; after the root
	// splits on it no descendant may split on it again.
	info := []dataset.CategoricalInfo{{Name: "group", Values: make([]string, 3)}}
	samples := make([]dataset.ClassSample, 0, 90)
	for i := 0; i < 30; i++ {
		for v := 0; v < 3; v++ {
			p, err := dataset.NewPoint(
				mat.NewVecDense(1, []float64{float64(i % 4)}),
				[]int{v}, info, 1.0,
			)
			if err != nil {
				t.Fatalf("NewPoint failed: %v", err)
			}
			samples = append(samples, dataset.ClassSample{Point: p, Class: v})
		}
	}

	clf := NewDecisionTreeClassifier()
	if err := clf.FitSamples(samples, dataset.AllFeatures(1, 1), 3); err != nil {
		t.Fatalf("FitSamples failed: %v", err)
	}

	root := clf.Root()
	if root.IsLeaf() || root.Feature() != 1 {
		t.Fatalf("root feature = %d, want the categorical feature 1", root.Feature())
	}
	var check func(n Node, depth int)
	check = func(n Node, depth int) {
		if n == nil || n.IsLeaf() {
			return
		}
		if depth > 0 && n.Feature() == 1 {
			t.Fatal("categorical feature reused below its split")
		}
		for i := 0; i < n.ChildCount(); i++ {
			check(n.Child(i), depth+1)
		}
	}
	check(root, 0)
}

func TestReducedErrorPruningShrinksTree(t *testing.T) {
	// Noisy labels force overfitting without pruning.
	n := 200
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		label := 0.0
		if i >= n/2 {
			label = 1
		}
		if i%11 == 0 {
			label = 1 - label
		}
		y.Set(i, 0, label)
	}

	grown := NewDecisionTreeClassifier(WithMinResultSplitSize(2))
	if err := grown.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	pruned := NewDecisionTreeClassifier(
		WithMinResultSplitSize(2),
		WithPruning(PruneReducedError),
		WithTestProportion(0.3),
		WithSeed(7),
	)
	if err := pruned.Fit(X, y); err != nil {
		t.Fatalf("Fit with pruning failed: %v", err)
	}

	if pruned.GetNLeaves() > grown.GetNLeaves() {
		t.Errorf("pruned leaves %d > grown leaves %d", pruned.GetNLeaves(), grown.GetNLeaves())
	}
	if _, err := pruned.Predict(X); err != nil {
		t.Errorf("pruned tree cannot predict: %v", err)
	}
}

func TestErrorBasedPruning(t *testing.T) {
	X, y := blobs2D(40)
	clf := NewDecisionTreeClassifier(WithPruning(PruneErrorBased))
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := clf.Score(X, y); got < 0.9 {
		t.Errorf("accuracy after error-based pruning = %f", got)
	}
}

func TestFeatureImportances(t *testing.T) {
	// Feature 0 fully determines the label, feature 1 is constant noise.
	n := 60
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%3))
		if i >= n/2 {
			y.Set(i, 0, 1)
		}
	}

	clf := NewDecisionTreeClassifier()
	if err := clf.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	imp := clf.GetFeatureImportances()
	if len(imp) != 2 {
		t.Fatalf("importances length = %d, want 2", len(imp))
	}
	sum := imp[0] + imp[1]
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("importances sum to %f, want 1", sum)
	}
	if imp[0] <= imp[1] {
		t.Errorf("informative feature not dominant: %v", imp)
	}
}

func TestDecisionTreeRegressorFit(t *testing.T) {
	n := 100
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i < n/2 {
			y.Set(i, 0, 2.0)
		} else {
			y.Set(i, 0, 8.0)
		}
	}

	reg := NewDecisionTreeRegressor()
	if err := reg.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := reg.Score(X, y); got < 0.99 {
		t.Errorf("R^2 = %f, want near 1", got)
	}

	pred, err := reg.Predict(mat.NewDense(1, 1, []float64{10}))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(pred.At(0, 0)-2.0) > 0.5 {
		t.Errorf("prediction at x=10 is %f, want near 2", pred.At(0, 0))
	}
}

func TestGetSetParams(t *testing.T) {
	clf := NewDecisionTreeClassifier(WithMaxDepth(7), WithCriterion("entropy"))
	params := clf.GetParams()
	if params["max_depth"] != 7 || params["criterion"] != "entropy" {
		t.Fatalf("unexpected params: %v", params)
	}

	other := NewDecisionTreeClassifier()
	if err := other.SetParams(params); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	if other.cfg.maxDepth != 7 || other.cfg.criterion != "entropy" {
		t.Errorf("params not applied: %+v", other.cfg)
	}

	if err := other.SetParams(map[string]interface{}{"bogus": 1}); err == nil {
		t.Error("unknown parameter must be rejected")
	}
}

func TestDisabledPathFallback(t *testing.T) {
	split := NewNumericSplit(0, []float64{0.5}, 10, 0.5)
	split.setProbs([]float64{0.3, 0.7})
	split.setChild(0, NewLeaf([]float64{1, 0}, 5, 0))
	split.setChild(1, NewLeaf([]float64{0, 1}, 5, 0))

	low := dataset.NewNumericPoint([]float64{0})
	probs := classifyPoint(split, low)
	if probs[0] != 1 {
		t.Fatalf("enabled path distribution = %v", probs)
	}

	split.DisablePath(0)
	if !split.PathDisabled(0) {
		t.Fatal("path 0 not disabled")
	}
	if split.Child(0) != nil {
		t.Fatal("disabled path must route to nil child")
	}
	probs = classifyPoint(split, low)
	if probs[0] != 0.3 || probs[1] != 0.7 {
		t.Fatalf("fallback distribution = %v, want node's own", probs)
	}

	// The other path is unaffected.
	high := dataset.NewNumericPoint([]float64{1})
	probs = classifyPoint(split, high)
	if probs[1] != 1 {
		t.Fatalf("sibling path distribution = %v", probs)
	}

	if got := countLeaves(split); got != 2 {
		t.Errorf("leaves = %d, want 2 (fallback counts as one)", got)
	}
}

func TestImportanceByUses(t *testing.T) {
	inner := NewNumericSplit(1, []float64{1}, 5, 0.4)
	inner.setProbs([]float64{0.5, 0.5})
	inner.setChild(0, NewLeaf([]float64{1, 0}, 2, 0))
	inner.setChild(1, NewLeaf([]float64{0, 1}, 3, 0))

	root := NewNumericSplit(0, []float64{0}, 10, 0.5)
	root.setProbs([]float64{0.5, 0.5})
	root.setChild(0, inner)
	root.setChild(1, NewLeaf([]float64{0, 1}, 5, 0))

	imp := ImportanceByUses(root, 3)
	if imp[0] != 0.5 || imp[1] != 0.5 || imp[2] != 0 {
		t.Errorf("uses importance = %v, want [0.5 0.5 0]", imp)
	}

	// Disabling the inner subtree removes feature 1 from the counts.
	root.DisablePath(0)
	imp = ImportanceByUses(root, 3)
	if imp[1] != 0 || imp[0] != 1 {
		t.Errorf("uses importance after pruning = %v, want [1 0 0]", imp)
	}
}
