package tree

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/pkg/errors"
)

// numericClassSamples builds 1-D samples with class c for value v.
func numericClassSamples(pairs [][2]float64) []dataset.ClassSample {
	out := make([]dataset.ClassSample, len(pairs))
	for i, p := range pairs {
		out[i] = dataset.ClassSample{
			Point: dataset.NewNumericPoint([]float64{p[0]}),
			Class: int(p[1]),
		}
	}
	return out
}

// separable1D returns n samples per class: class 0 spread below 0, class 1
// spread above 1.
func separable1D(n int) []dataset.ClassSample {
	pairs := make([][2]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, [2]float64{-1 - float64(i)*0.1, 0})
		pairs = append(pairs, [2]float64{1 + float64(i)*0.1, 1})
	}
	return numericClassSamples(pairs)
}

func catSamples(values []int, classes []int, cardinality int) []dataset.ClassSample {
	info := []dataset.CategoricalInfo{{Name: "color", Values: make([]string, cardinality)}}
	out := make([]dataset.ClassSample, len(values))
	for i := range values {
		p, err := dataset.NewPoint(nil, []int{values[i]}, info, 1.0)
		if err != nil {
			panic(err)
		}
		out[i] = dataset.ClassSample{Point: p, Class: classes[i]}
	}
	return out
}

func TestStumpRequiresClasses(t *testing.T) {
	s := NewDecisionStump()
	_, err := s.TrainClassifier(separable1D(10), dataset.AllFeatures(1, 0))
	if err == nil {
		t.Fatal("expected error when classes are not configured")
	}
}

func TestStumpRequiresTraining(t *testing.T) {
	s := NewDecisionStump()
	p := dataset.NewNumericPoint([]float64{0})
	if _, err := s.WhichPath(p); err == nil {
		t.Error("WhichPath before training must fail")
	}
	if _, err := s.Classify(p); err == nil {
		t.Error("Classify before training must fail")
	}
	if _, err := s.Regress(p); err == nil {
		t.Error("Regress before training must fail")
	}
}

func TestStumpBinaryNumericSplit(t *testing.T) {
	s := NewDecisionStump()
	s.SetClasses(2)
	samples := separable1D(10)

	parts, err := s.TrainClassifier(samples, dataset.AllFeatures(1, 0))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if s.Paths() != 2 || len(parts) != 2 {
		t.Fatalf("paths = %d, want 2", s.Paths())
	}
	if s.FeatureIndex() != 0 {
		t.Errorf("feature = %d, want 0", s.FeatureIndex())
	}
	thresh := s.Thresholds()[0]
	if thresh <= -1 || thresh >= 1 {
		t.Errorf("threshold = %f, want inside (-1, 1)", thresh)
	}
	if len(parts[0])+len(parts[1]) != len(samples) {
		t.Errorf("partitions lost samples: %d + %d != %d", len(parts[0]), len(parts[1]), len(samples))
	}

	probs, err := s.Classify(dataset.NewNumericPoint([]float64{-3}))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if probs[0] < probs[1] {
		t.Errorf("low point classified as class 1: %v", probs)
	}
}

func TestStumpDegeneratesOnUniformLabels(t *testing.T) {
	pairs := make([][2]float64, 30)
	for i := range pairs {
		pairs[i] = [2]float64{float64(i), 0}
	}
	s := NewDecisionStump()
	s.SetClasses(2)

	parts, err := s.TrainClassifier(numericClassSamples(pairs), dataset.AllFeatures(1, 0))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if s.Paths() != 1 || len(parts) != 1 {
		t.Fatalf("degenerate stump paths = %d, want 1", s.Paths())
	}
	if s.FeatureIndex() != -1 {
		t.Errorf("degenerate stump feature = %d, want -1", s.FeatureIndex())
	}
	path, err := s.WhichPath(dataset.NewNumericPoint([]float64{1e9}))
	if err != nil || path != 0 {
		t.Errorf("degenerate stump path = %d (%v), want 0", path, err)
	}
	probs, err := s.Classify(dataset.NewNumericPoint([]float64{0}))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if probs[0] != 1 {
		t.Errorf("degenerate distribution = %v, want all class 0", probs)
	}
}

func TestStumpMinResultSplitSize(t *testing.T) {
	// 4 points per side cannot honor a minimum of 5, so the stump must
	// degenerate even though the data is separable.
	s := NewDecisionStump(WithStumpMinSplitSize(5))
	s.SetClasses(2)
	parts, err := s.TrainClassifier(separable1D(4), dataset.AllFeatures(1, 0))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("paths = %d, want degenerate 1", len(parts))
	}
}

func TestStumpInvalidMinSplitSize(t *testing.T) {
	s := NewDecisionStump(WithStumpMinSplitSize(1))
	s.SetClasses(2)
	if _, err := s.TrainClassifier(separable1D(10), dataset.AllFeatures(1, 0)); err == nil {
		t.Error("expected validation error for minResultSplitSize of 1")
	}
}

func TestStumpCategoricalFanOut(t *testing.T) {
	values := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	classes := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	s := NewDecisionStump()
	s.SetClasses(3)

	parts, err := s.TrainClassifier(catSamples(values, classes, 3), dataset.AllFeatures(0, 1))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if s.Paths() != 3 {
		t.Fatalf("paths = %d, want 3 (one per category value)", s.Paths())
	}
	for v := 0; v < 3; v++ {
		if len(parts[v]) != 3 {
			t.Errorf("partition %d has %d samples, want 3", v, len(parts[v]))
		}
		info := []dataset.CategoricalInfo{{Name: "color", Values: make([]string, 3)}}
		p, _ := dataset.NewPoint(nil, []int{v}, info, 1.0)
		probs, err := s.Classify(p)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if probs[v] != 1 {
			t.Errorf("value %d distribution = %v, want pure class %d", v, probs, v)
		}
	}
}

func TestStumpBinaryGrouping(t *testing.T) {
	// Values 0 and 2 carry class 0, value 1 carries class 1: the best
	// binary grouping must isolate value 1.
	values := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	classes := []int{0, 0, 0, 1, 1, 1, 0, 0, 0}
	s := NewDecisionStump(WithStumpBinaryCategorical(true))
	s.SetClasses(2)

	parts, err := s.TrainClassifier(catSamples(values, classes, 3), dataset.AllFeatures(0, 1))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if s.Paths() != 2 {
		t.Fatalf("paths = %d, want 2", s.Paths())
	}
	sizes := []int{len(parts[0]), len(parts[1])}
	if !(sizes[0] == 3 && sizes[1] == 6) && !(sizes[0] == 6 && sizes[1] == 3) {
		t.Errorf("partition sizes = %v, want {3, 6}", sizes)
	}
}

func TestStumpPDFIntersections(t *testing.T) {
	// Two well separated value clusters; the density crossing lies
	// between them.
	pairs := make([][2]float64, 0, 60)
	for i := 0; i < 30; i++ {
		pairs = append(pairs, [2]float64{float64(i%10)*0.05 - 2, 0})
		pairs = append(pairs, [2]float64{float64(i%10)*0.05 + 2, 1})
	}
	s := NewDecisionStump(WithStumpStrategy(PDFIntersections))
	s.SetClasses(2)

	parts, err := s.TrainClassifier(numericClassSamples(pairs), dataset.AllFeatures(1, 0))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("paths = %d, want a real split", len(parts))
	}
	for _, th := range s.Thresholds() {
		if th < -1.6 || th > 2.1 {
			t.Errorf("threshold %f outside the gap between clusters", th)
		}
	}

	probs, err := s.Classify(dataset.NewNumericPoint([]float64{-2}))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if probs[0] < probs[1] {
		t.Errorf("cluster 0 point classified as class 1: %v", probs)
	}
}

func TestStumpRegression(t *testing.T) {
	samples := make([]dataset.RegSample, 0, 40)
	for i := 0; i < 20; i++ {
		samples = append(samples, dataset.RegSample{
			Point:  dataset.NewNumericPoint([]float64{float64(i)}),
			Target: 1.0,
		})
		samples = append(samples, dataset.RegSample{
			Point:  dataset.NewNumericPoint([]float64{float64(i) + 100}),
			Target: 5.0,
		})
	}

	s := NewDecisionStump()
	parts, err := s.TrainRegressor(samples, dataset.AllFeatures(1, 0))
	if err != nil {
		t.Fatalf("TrainRegressor failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("paths = %d, want 2", len(parts))
	}

	low, err := s.Regress(dataset.NewNumericPoint([]float64{5}))
	if err != nil {
		t.Fatalf("Regress failed: %v", err)
	}
	if math.Abs(low-1.0) > 1e-9 {
		t.Errorf("low prediction = %f, want 1", low)
	}
	high, _ := s.Regress(dataset.NewNumericPoint([]float64{150}))
	if math.Abs(high-5.0) > 1e-9 {
		t.Errorf("high prediction = %f, want 5", high)
	}
}

func TestStumpWeightedMajority(t *testing.T) {
	// A single heavy point outweighs many light ones on the same side.
	info := dataset.AllFeatures(1, 0)
	samples := []dataset.ClassSample{}
	for i := 0; i < 10; i++ {
		samples = append(samples, dataset.ClassSample{
			Point: dataset.NewNumericPoint([]float64{float64(i)}),
			Class: 0,
		})
	}
	v := mat.NewVecDense(1, []float64{5})
	heavy, err := dataset.NewPoint(v, nil, nil, 100)
	if err != nil {
		t.Fatalf("NewPoint failed: %v", err)
	}
	samples = append(samples, dataset.ClassSample{Point: heavy, Class: 1})

	s := NewDecisionStump()
	s.SetClasses(2)
	if _, err := s.TrainClassifier(samples, info); err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	probs, err := s.Classify(dataset.NewNumericPoint([]float64{5}))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if probs[1] < probs[0] {
		t.Errorf("heavy class outweighed: %v", probs)
	}
}

// twoGaussianSamples draws n points per class: the first feature separates
// the classes (means -2.5 and +2.5, unit variance), the second is pure
// noise.
func twoGaussianSamples(rng *rand.Rand, n int) []dataset.ClassSample {
	out := make([]dataset.ClassSample, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, dataset.ClassSample{
			Point: dataset.NewNumericPoint([]float64{-2.5 + rng.NormFloat64(), rng.NormFloat64()}),
			Class: 0,
		})
		out = append(out, dataset.ClassSample{
			Point: dataset.NewNumericPoint([]float64{2.5 + rng.NormFloat64(), rng.NormFloat64()}),
			Class: 1,
		})
	}
	return out
}

func TestStumpTwoGaussianFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	train := twoGaussianSamples(rng, 50)
	held := twoGaussianSamples(rng, 50)

	s := NewDecisionStump()
	s.SetClasses(2)
	parts, err := s.TrainClassifier(train, dataset.AllFeatures(2, 0))
	if err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("partitions = %d, want 2", len(parts))
	}
	if got := s.FeatureIndex(); got != 0 {
		t.Fatalf("selected feature %d, want the separating feature 0", got)
	}

	correct := 0
	for _, smp := range held {
		probs, err := s.Classify(smp.Point)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		pred := 0
		if probs[1] > probs[0] {
			pred = 1
		}
		if pred == smp.Class {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(held)); acc < 0.95 {
		t.Errorf("held-out accuracy = %f, want at least 0.95", acc)
	}
}

func TestStumpDegenerateEmitsWarning(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(w error) {})

	pairs := make([][2]float64, 30)
	for i := range pairs {
		pairs[i] = [2]float64{float64(i), 0}
	}
	s := NewDecisionStump()
	s.SetClasses(2)
	if _, err := s.TrainClassifier(numericClassSamples(pairs), dataset.AllFeatures(1, 0)); err != nil {
		t.Fatalf("TrainClassifier failed: %v", err)
	}

	if len(warned) != 1 {
		t.Fatalf("warnings emitted = %d, want 1", len(warned))
	}
	var dsw *errors.DegenerateSplitWarning
	if !errors.As(warned[0], &dsw) {
		t.Fatalf("warning type = %T, want DegenerateSplitWarning", warned[0])
	}
	if dsw.Samples != 30 {
		t.Errorf("warning samples = %d, want 30", dsw.Samples)
	}
}
