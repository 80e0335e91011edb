package tree

import (
	"math"
	"sort"

	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/pkg/errors"
	"github.com/groveml/grove/stats/kde"
)

// NumericStrategy selects how numeric attributes are turned into split
// candidates during classification training.
type NumericStrategy int

const (
	// BinaryBestGain scans every boundary between consecutive sorted
	// values and keeps the single best binary threshold.
	BinaryBestGain NumericStrategy = iota
	// PDFIntersections fits a kernel density per class and places
	// thresholds where the class densities cross, which can produce
	// multiway numeric splits.
	PDFIntersections
)

func (s NumericStrategy) String() string {
	switch s {
	case BinaryBestGain:
		return "binary_best_gain"
	case PDFIntersections:
		return "pdf_intersections"
	default:
		return "unknown"
	}
}

const (
	// gainEpsilon is the minimum split gain considered meaningful.
	// Candidates at or below it leave the stump as a degenerate leaf.
	gainEpsilon = 1e-9

	// maxExhaustiveCategories bounds the exhaustive search for the best
	// binary grouping of a categorical attribute.
	maxExhaustiveCategories = 12
)

// DecisionStump is a single-level decision tree: it selects one feature and
// a partition of its values, and predicts a class distribution or regression
// value per resulting path. Stumps are the split-search primitive the deeper
// trees are built from, and are usable as weak learners on their own.
//
// The zero value is not ready for use; construct with NewDecisionStump.
type DecisionStump struct {
	measure            ImpurityMeasure
	strategy           NumericStrategy
	minResultSplitSize int
	binaryCategorical  bool
	numClasses         int

	// fitted state
	feature     int
	catIdx      int
	thresholds  []float64
	valueToPath []int
	paths       int
	pathProbs   [][]float64
	pathValues  []float64
	gain        float64
	regression  bool
	trained     bool
}

// StumpOption configures a DecisionStump.
type StumpOption func(*DecisionStump)

// WithStumpImpurity sets the impurity measure used to score candidate splits.
func WithStumpImpurity(m ImpurityMeasure) StumpOption {
	return func(s *DecisionStump) { s.measure = m }
}

// WithStumpStrategy sets the numeric split search strategy.
func WithStumpStrategy(strategy NumericStrategy) StumpOption {
	return func(s *DecisionStump) { s.strategy = strategy }
}

// WithStumpMinSplitSize sets the minimum number of samples each side of a
// numeric split must keep. Must be greater than 1.
func WithStumpMinSplitSize(n int) StumpOption {
	return func(s *DecisionStump) { s.minResultSplitSize = n }
}

// WithStumpBinaryCategorical reduces categorical splits to the best binary
// grouping of values instead of a full per-value fan-out.
func WithStumpBinaryCategorical(binary bool) StumpOption {
	return func(s *DecisionStump) { s.binaryCategorical = binary }
}

// NewDecisionStump returns a stump with Gini impurity, the binary numeric
// strategy and a minimum split result size of 5.
func NewDecisionStump(opts ...StumpOption) *DecisionStump {
	s := &DecisionStump{
		measure:            Gini,
		strategy:           BinaryBestGain,
		minResultSplitSize: 5,
		feature:            -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClasses configures the number of target classes. Classification
// training fails until this has been called with a positive count.
func (s *DecisionStump) SetClasses(numClasses int) {
	s.numClasses = numClasses
}

// Paths returns the number of outgoing paths after training. A degenerate
// stump has a single path.
func (s *DecisionStump) Paths() int { return s.paths }

// FeatureIndex returns the combined index of the split feature, or -1 when
// the stump degenerated to a leaf.
func (s *DecisionStump) FeatureIndex() int { return s.feature }

// Gain returns the impurity reduction achieved by the chosen split.
func (s *DecisionStump) Gain() float64 { return s.gain }

// Thresholds returns the numeric split boundaries, nil for categorical or
// degenerate stumps.
func (s *DecisionStump) Thresholds() []float64 { return s.thresholds }

func (s *DecisionStump) validate() error {
	if s.minResultSplitSize <= 1 {
		return errors.NewValidationError("minResultSplitSize", "must be greater than 1", s.minResultSplitSize)
	}
	if s.strategy != BinaryBestGain && s.strategy != PDFIntersections {
		return errors.NewValidationError("numericStrategy", "unknown strategy", int(s.strategy))
	}
	if s.measure < InformationGain || s.measure > ClassificationError {
		return errors.NewValidationError("criterion", "unknown impurity measure", int(s.measure))
	}
	return nil
}

// classCandidate is one evaluated split of the training samples.
type classCandidate struct {
	gain        float64
	feature     int
	thresholds  []float64
	valueToPath []int
	paths       int
	parts       [][]dataset.ClassSample
}

// TrainClassifier searches the allowed features for the best split of the
// samples and returns the resulting partitions, one per path. When no
// feature yields a gain above the minimum the stump degenerates to a single
// path predicting the parent distribution, and all samples are returned in
// one partition.
func (s *DecisionStump) TrainClassifier(samples []dataset.ClassSample, features *dataset.FeatureSet) ([][]dataset.ClassSample, error) {
	if s.numClasses < 1 {
		return nil, errors.NewValueError("DecisionStump.TrainClassifier", "number of classes not configured, call SetClasses first")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}

	parent, err := scoreFromSamples(samples, s.numClasses, s.measure)
	if err != nil {
		return nil, err
	}
	numNumeric := samples[0].Point.NumNumeric()

	var best *classCandidate
	for _, f := range features.Values() {
		var cand *classCandidate
		if f < numNumeric {
			cand = s.numericClassSplit(samples, f, parent)
		} else {
			cand = s.categoricalClassSplit(samples, f, f-numNumeric, parent)
		}
		// Strict comparison keeps the first feature found on ties, so
		// the result is independent of evaluation order elsewhere.
		if cand != nil && (best == nil || cand.gain > best.gain) {
			best = cand
		}
	}

	s.regression = false
	if best == nil || best.gain <= gainEpsilon {
		errors.Warn(errors.NewDegenerateSplitWarning("DecisionStump.TrainClassifier", -1, len(samples)))
		s.degenerateClass(parent)
		return [][]dataset.ClassSample{samples}, nil
	}

	s.feature = best.feature
	s.catIdx = best.feature - numNumeric
	s.thresholds = best.thresholds
	s.valueToPath = best.valueToPath
	s.paths = best.paths
	s.gain = best.gain
	s.pathProbs = make([][]float64, best.paths)
	for i, part := range best.parts {
		if len(part) == 0 {
			s.pathProbs[i] = parent.Distribution()
			continue
		}
		s.pathProbs[i] = dataset.PriorDistribution(part, s.numClasses)
	}
	s.trained = true
	return best.parts, nil
}

func (s *DecisionStump) degenerateClass(parent *ImpurityScore) {
	s.feature = -1
	s.catIdx = -1
	s.thresholds = nil
	s.valueToPath = nil
	s.paths = 1
	s.gain = 0
	s.pathProbs = [][]float64{parent.Distribution()}
	s.trained = true
}

func (s *DecisionStump) numericClassSplit(samples []dataset.ClassSample, feature int, parent *ImpurityScore) *classCandidate {
	if s.strategy == PDFIntersections {
		if cand := s.pdfIntersectionSplit(samples, feature, parent); cand != nil {
			return cand
		}
		return nil
	}
	return s.binaryNumericClassSplit(samples, feature, parent)
}

// binaryNumericClassSplit scans boundaries between consecutive sorted values
// with a pair of sliding accumulators, so each candidate is scored in O(1).
func (s *DecisionStump) binaryNumericClassSplit(samples []dataset.ClassSample, feature int, parent *ImpurityScore) *classCandidate {
	n := len(samples)
	if n < 2*s.minResultSplitSize {
		return nil
	}

	sorted := make([]dataset.ClassSample, n)
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Point.NumericValue(feature) < sorted[j].Point.NumericValue(feature)
	})

	left, err := NewImpurityScore(s.numClasses, s.measure)
	if err != nil {
		return nil
	}
	right := parent.Clone()

	bestGain := math.Inf(-1)
	bestThresh := 0.0
	bestPos := -1
	for i := 0; i < n-1; i++ {
		w := sorted[i].Point.Weight()
		left.AddPoint(w, sorted[i].Class)
		right.RemovePoint(w, sorted[i].Class)

		if i+1 < s.minResultSplitSize || n-(i+1) < s.minResultSplitSize {
			continue
		}
		v, next := sorted[i].Point.NumericValue(feature), sorted[i+1].Point.NumericValue(feature)
		if v == next {
			continue
		}
		if g := parent.Gain(left, right); g > bestGain {
			bestGain = g
			bestThresh = v + (next-v)/2
			bestPos = i + 1
		}
	}
	if bestPos < 0 {
		return nil
	}

	return &classCandidate{
		gain:       bestGain,
		feature:    feature,
		thresholds: []float64{bestThresh},
		paths:      2,
		parts:      [][]dataset.ClassSample{sorted[:bestPos:bestPos], sorted[bestPos:]},
	}
}

// pdfIntersectionSplit fits a density per class and places thresholds where
// the prior-weighted densities cross. Adjacent intervals dominated by the
// same class are merged. Returns nil when no usable boundary is found or a
// resulting partition is too small.
func (s *DecisionStump) pdfIntersectionSplit(samples []dataset.ClassSample, feature int, parent *ImpurityScore) *classCandidate {
	total := parent.SumWeight()
	if total <= 0 {
		return nil
	}

	type classDensity struct {
		class  int
		prior  float64
		mean   float64
		k      *kde.KDE
	}
	byClass := dataset.ByClass(samples, s.numClasses)
	densities := make([]classDensity, 0, s.numClasses)
	for c, group := range byClass {
		if len(group) == 0 {
			continue
		}
		values := make([]float64, len(group))
		weights := make([]float64, len(group))
		sumW, sumWX := 0.0, 0.0
		for i, smp := range group {
			values[i] = smp.Point.NumericValue(feature)
			weights[i] = smp.Point.Weight()
			sumW += weights[i]
			sumWX += weights[i] * values[i]
		}
		if sumW <= 0 {
			continue
		}
		k, err := kde.New(values, weights)
		if err != nil {
			continue
		}
		densities = append(densities, classDensity{class: c, prior: sumW / total, mean: sumWX / sumW, k: k})
	}
	if len(densities) < 2 {
		return nil
	}

	var boundaries []float64
	for i := 0; i < len(densities); i++ {
		for j := i + 1; j < len(densities); j++ {
			a, b := densities[i], densities[j]
			found := intersections(
				func(x float64) float64 { return a.prior*a.k.PDF(x) - b.prior*b.k.PDF(x) },
				math.Min(a.k.Min(), b.k.Min()),
				math.Max(a.k.Max(), b.k.Max()),
			)
			if len(found) == 0 {
				// Rough estimate when the densities never cross in
				// the sweep: the midpoint between the class means.
				if a.mean != b.mean {
					boundaries = append(boundaries, a.mean+(b.mean-a.mean)/2)
				}
				continue
			}
			boundaries = append(boundaries, found...)
		}
	}
	if len(boundaries) == 0 {
		return nil
	}
	sort.Float64s(boundaries)
	boundaries = dedupeSorted(boundaries)

	// Dominant class per interval, sampled at interval midpoints.
	dominant := func(x float64) int {
		best, bestDensity := densities[0].class, math.Inf(-1)
		for _, d := range densities {
			if v := d.prior * d.k.PDF(x); v > bestDensity {
				best, bestDensity = d.class, v
			}
		}
		return best
	}
	lo := boundaries[0] - 1
	hi := boundaries[len(boundaries)-1] + 1
	owners := make([]int, len(boundaries)+1)
	for i := range owners {
		left := lo
		if i > 0 {
			left = boundaries[i-1]
		}
		right := hi
		if i < len(boundaries) {
			right = boundaries[i]
		}
		owners[i] = dominant(left + (right-left)/2)
	}
	thresholds := boundaries[:0]
	for i, b := range boundaries {
		if owners[i] != owners[i+1] {
			thresholds = append(thresholds, b)
		}
	}
	if len(thresholds) == 0 {
		return nil
	}

	paths := len(thresholds) + 1
	parts := make([][]dataset.ClassSample, paths)
	for _, smp := range samples {
		p := sort.SearchFloat64s(thresholds, smp.Point.NumericValue(feature))
		parts[p] = append(parts[p], smp)
	}
	scores := make([]*ImpurityScore, paths)
	for i, part := range parts {
		if len(part) < s.minResultSplitSize {
			return nil
		}
		sc, err := scoreFromSamples(part, s.numClasses, s.measure)
		if err != nil {
			return nil
		}
		scores[i] = sc
	}

	out := make([]float64, len(thresholds))
	copy(out, thresholds)
	return &classCandidate{
		gain:       parent.Gain(scores...),
		feature:    feature,
		thresholds: out,
		paths:      paths,
		parts:      parts,
	}
}

// intersections locates sign changes of f over [lo, hi] by a fixed-step
// sweep and refines each with bisection.
func intersections(f func(float64) float64, lo, hi float64) []float64 {
	const steps = 64
	if hi <= lo {
		return nil
	}
	var out []float64
	dx := (hi - lo) / steps
	prevX, prevY := lo, f(lo)
	for i := 1; i <= steps; i++ {
		x := lo + float64(i)*dx
		y := f(x)
		if prevY == 0 {
			out = append(out, prevX)
		} else if (prevY < 0) != (y < 0) {
			out = append(out, bisect(f, prevX, x))
		}
		prevX, prevY = x, y
	}
	return out
}

func bisect(f func(float64) float64, lo, hi float64) float64 {
	flo := f(lo)
	for i := 0; i < 40; i++ {
		mid := lo + (hi-lo)/2
		fm := f(mid)
		if fm == 0 {
			return mid
		}
		if (flo < 0) == (fm < 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}

func dedupeSorted(xs []float64) []float64 {
	out := xs[:1]
	for _, x := range xs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func (s *DecisionStump) categoricalClassSplit(samples []dataset.ClassSample, feature, catIdx int, parent *ImpurityScore) *classCandidate {
	card := samples[0].Point.CatInfo(catIdx).Cardinality()
	if card < 2 {
		return nil
	}

	byValue := make([][]dataset.ClassSample, card)
	for _, smp := range samples {
		v := smp.Point.Categorical(catIdx)
		byValue[v] = append(byValue[v], smp)
	}

	if s.binaryCategorical && card > 2 && card <= maxExhaustiveCategories {
		return s.bestBinaryGrouping(byValue, feature, parent)
	}

	nonEmpty := 0
	scores := make([]*ImpurityScore, card)
	for v, part := range byValue {
		sc, err := scoreFromSamples(part, s.numClasses, s.measure)
		if err != nil {
			return nil
		}
		scores[v] = sc
		if len(part) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty < 2 {
		return nil
	}

	valueToPath := make([]int, card)
	for v := range valueToPath {
		valueToPath[v] = v
	}
	return &classCandidate{
		gain:        parent.Gain(scores...),
		feature:     feature,
		valueToPath: valueToPath,
		paths:       card,
		parts:       byValue,
	}
}

// bestBinaryGrouping searches all 2-way groupings of the category values.
// Value 0 is pinned to the first group to skip mirrored groupings.
func (s *DecisionStump) bestBinaryGrouping(byValue [][]dataset.ClassSample, feature int, parent *ImpurityScore) *classCandidate {
	card := len(byValue)
	scores := make([]*ImpurityScore, card)
	for v, part := range byValue {
		sc, err := scoreFromSamples(part, s.numClasses, s.measure)
		if err != nil {
			return nil
		}
		scores[v] = sc
	}

	bestGain := math.Inf(-1)
	bestMask := 0
	for mask := 1; mask < 1<<(card-1); mask++ {
		group := mask << 1 // value 0 stays out of the group
		left, err := NewImpurityScore(s.numClasses, s.measure)
		if err != nil {
			return nil
		}
		right, err := NewImpurityScore(s.numClasses, s.measure)
		if err != nil {
			return nil
		}
		for v := 0; v < card; v++ {
			target := right
			if group&(1<<v) != 0 {
				target = left
			}
			for c := 0; c < s.numClasses; c++ {
				target.AddPoint(scores[v].counts[c], c)
			}
		}
		if left.SumWeight() <= 0 || right.SumWeight() <= 0 {
			continue
		}
		if g := parent.Gain(left, right); g > bestGain {
			bestGain = g
			bestMask = group
		}
	}
	if bestMask == 0 {
		return nil
	}

	valueToPath := make([]int, card)
	parts := make([][]dataset.ClassSample, 2)
	for v := 0; v < card; v++ {
		path := 0
		if bestMask&(1<<v) == 0 {
			path = 1
		}
		valueToPath[v] = path
		parts[path] = append(parts[path], byValue[v]...)
	}
	return &classCandidate{
		gain:        bestGain,
		feature:     feature,
		valueToPath: valueToPath,
		paths:       2,
		parts:       parts,
	}
}

// regCandidate is one evaluated split for regression training.
type regCandidate struct {
	gain        float64
	feature     int
	thresholds  []float64
	valueToPath []int
	paths       int
	parts       [][]dataset.RegSample
}

// TrainRegressor is the regression analogue of TrainClassifier, scoring
// candidates by weighted variance reduction. Regression always uses the
// binary scan for numeric attributes.
func (s *DecisionStump) TrainRegressor(samples []dataset.RegSample, features *dataset.FeatureSet) ([][]dataset.RegSample, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}

	parentMean, parentVar := dataset.WeightedVariance(samples)
	numNumeric := samples[0].Point.NumNumeric()

	var best *regCandidate
	for _, f := range features.Values() {
		var cand *regCandidate
		if f < numNumeric {
			cand = s.binaryNumericRegSplit(samples, f, parentVar)
		} else {
			cand = s.categoricalRegSplit(samples, f, f-numNumeric, parentVar)
		}
		if cand != nil && (best == nil || cand.gain > best.gain) {
			best = cand
		}
	}

	s.regression = true
	if best == nil || best.gain <= gainEpsilon {
		errors.Warn(errors.NewDegenerateSplitWarning("DecisionStump.TrainRegressor", -1, len(samples)))
		s.feature = -1
		s.catIdx = -1
		s.thresholds = nil
		s.valueToPath = nil
		s.paths = 1
		s.gain = 0
		s.pathValues = []float64{parentMean}
		s.trained = true
		return [][]dataset.RegSample{samples}, nil
	}

	s.feature = best.feature
	s.catIdx = best.feature - numNumeric
	s.thresholds = best.thresholds
	s.valueToPath = best.valueToPath
	s.paths = best.paths
	s.gain = best.gain
	s.pathValues = make([]float64, best.paths)
	for i, part := range best.parts {
		if len(part) == 0 {
			s.pathValues[i] = parentMean
			continue
		}
		s.pathValues[i] = dataset.WeightedMean(part)
	}
	s.trained = true
	return best.parts, nil
}

// regStats accumulates the sufficient statistics for weighted variance.
type regStats struct {
	w, wy, wy2 float64
}

func (r *regStats) add(w, y float64) {
	r.w += w
	r.wy += w * y
	r.wy2 += w * y * y
}

func (r *regStats) remove(w, y float64) {
	r.w -= w
	r.wy -= w * y
	r.wy2 -= w * y * y
}

func (r *regStats) variance() float64 {
	if r.w <= 0 {
		return 0
	}
	mean := r.wy / r.w
	v := r.wy2/r.w - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func (s *DecisionStump) binaryNumericRegSplit(samples []dataset.RegSample, feature int, parentVar float64) *regCandidate {
	n := len(samples)
	if n < 2*s.minResultSplitSize {
		return nil
	}

	sorted := make([]dataset.RegSample, n)
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Point.NumericValue(feature) < sorted[j].Point.NumericValue(feature)
	})

	var left, right regStats
	for _, smp := range sorted {
		right.add(smp.Point.Weight(), smp.Target)
	}
	total := right.w
	if total <= 0 {
		return nil
	}

	bestGain := math.Inf(-1)
	bestThresh := 0.0
	bestPos := -1
	for i := 0; i < n-1; i++ {
		w := sorted[i].Point.Weight()
		left.add(w, sorted[i].Target)
		right.remove(w, sorted[i].Target)

		if i+1 < s.minResultSplitSize || n-(i+1) < s.minResultSplitSize {
			continue
		}
		v, next := sorted[i].Point.NumericValue(feature), sorted[i+1].Point.NumericValue(feature)
		if v == next {
			continue
		}
		g := parentVar - (left.w/total)*left.variance() - (right.w/total)*right.variance()
		if g > bestGain {
			bestGain = g
			bestThresh = v + (next-v)/2
			bestPos = i + 1
		}
	}
	if bestPos < 0 {
		return nil
	}

	return &regCandidate{
		gain:       bestGain,
		feature:    feature,
		thresholds: []float64{bestThresh},
		paths:      2,
		parts:      [][]dataset.RegSample{sorted[:bestPos:bestPos], sorted[bestPos:]},
	}
}

func (s *DecisionStump) categoricalRegSplit(samples []dataset.RegSample, feature, catIdx int, parentVar float64) *regCandidate {
	card := samples[0].Point.CatInfo(catIdx).Cardinality()
	if card < 2 {
		return nil
	}

	byValue := make([][]dataset.RegSample, card)
	total := 0.0
	for _, smp := range samples {
		v := smp.Point.Categorical(catIdx)
		byValue[v] = append(byValue[v], smp)
		total += smp.Point.Weight()
	}
	if total <= 0 {
		return nil
	}

	nonEmpty := 0
	gain := parentVar
	for _, part := range byValue {
		if len(part) == 0 {
			continue
		}
		nonEmpty++
		var st regStats
		for _, smp := range part {
			st.add(smp.Point.Weight(), smp.Target)
		}
		gain -= (st.w / total) * st.variance()
	}
	if nonEmpty < 2 {
		return nil
	}

	valueToPath := make([]int, card)
	for v := range valueToPath {
		valueToPath[v] = v
	}
	return &regCandidate{
		gain:        gain,
		feature:     feature,
		valueToPath: valueToPath,
		paths:       card,
		parts:       byValue,
	}
}

// WhichPath returns the path the point follows through the trained stump.
// A degenerate stump routes every point to path 0.
func (s *DecisionStump) WhichPath(p *dataset.Point) (int, error) {
	if !s.trained {
		return 0, errors.NewNotFittedError("DecisionStump", "WhichPath")
	}
	if s.feature < 0 {
		return 0, nil
	}
	if s.thresholds != nil {
		return sort.SearchFloat64s(s.thresholds, p.NumericValue(s.feature)), nil
	}
	v := p.Categorical(s.catIdx)
	if v < 0 || v >= len(s.valueToPath) {
		return 0, errors.NewValueError("DecisionStump.WhichPath", "categorical value out of range")
	}
	return s.valueToPath[v], nil
}

// Classify returns the class distribution of the path the point follows.
func (s *DecisionStump) Classify(p *dataset.Point) ([]float64, error) {
	if !s.trained || s.regression {
		return nil, errors.NewNotFittedError("DecisionStump", "Classify")
	}
	path, err := s.WhichPath(p)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(s.pathProbs[path]))
	copy(out, s.pathProbs[path])
	return out, nil
}

// Regress returns the predicted value of the path the point follows.
func (s *DecisionStump) Regress(p *dataset.Point) (float64, error) {
	if !s.trained || !s.regression {
		return 0, errors.NewNotFittedError("DecisionStump", "Regress")
	}
	path, err := s.WhichPath(p)
	if err != nil {
		return 0, err
	}
	return s.pathValues[path], nil
}
