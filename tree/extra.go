package tree

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/core/model"
	"github.com/groveml/grove/core/parallel"
	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/metrics"
	"github.com/groveml/grove/pkg/errors"
	"github.com/groveml/grove/pkg/log"
)

// ExtraTreeClassifier is an extremely randomized classification tree. At
// each node it draws candidate features at random and splits them with
// random thresholds or random categorical groupings, keeping the best of the
// few candidates instead of searching exhaustively. Construction is
// single-goroutine and depth-first, recycling partition buffers through a
// pool; parallelism comes from the ensembles that aggregate these trees.
type ExtraTreeClassifier struct {
	state *model.StateManager
	cfg   treeConfig

	logger log.Logger

	classes_   []int
	nClasses_  int
	nFeatures_ int
	root       Node
}

// NewExtraTreeClassifier creates an extremely randomized tree. Defaults:
// Gini criterion, stop size 5, one random candidate feature per node.
func NewExtraTreeClassifier(opts ...Option) *ExtraTreeClassifier {
	t := &ExtraTreeClassifier{
		state:  model.NewStateManager(),
		cfg:    defaultTreeConfig(),
		logger: log.GetLoggerWithName("tree.extra_tree_classifier"),
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

// Fit trains the tree on X (samples by features) and integer labels y
// (samples by 1).
func (t *ExtraTreeClassifier) Fit(X, y mat.Matrix) error {
	xr, _ := X.Dims()
	yr, yc := y.Dims()
	if xr != yr || yc != 1 {
		return errors.NewDimensionError("ExtraTreeClassifier.Fit", xr, yr, 0)
	}

	classes, index := extractClasses(y)
	ids := make([]int, yr)
	for i := 0; i < yr; i++ {
		ids[i] = index[int(y.At(i, 0))]
	}
	samples, err := dataset.FromMatrix(X, ids)
	if err != nil {
		return err
	}

	t.classes_ = classes
	return t.FitSamples(samples, len(classes))
}

// FitSamples trains the tree on weighted, possibly categorical samples.
func (t *ExtraTreeClassifier) FitSamples(samples []dataset.ClassSample, numClasses int) error {
	measure, err := t.cfg.validate(false)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if numClasses < 1 {
		return errors.NewValidationError("numClasses", "must be at least 1", numClasses)
	}
	if t.classes_ == nil {
		t.classes_ = identityClasses(numClasses)
	}
	t.nClasses_ = numClasses
	t.nFeatures_ = samples[0].Point.NumFeatures()

	b := &extraClassBuilder{
		cfg:      &t.cfg,
		measure:  measure,
		nClasses: numClasses,
		rng:      rand.New(rand.NewSource(t.cfg.seed)),
	}
	root, err := b.build(samples, 0)
	if err != nil {
		return errors.NewTrainingError("ExtraTreeClassifier", "node_expansion", err)
	}

	t.root = root
	t.state.SetDimensions(t.nFeatures_, len(samples))
	t.state.SetFitted()
	t.logger.Info("Training completed",
		log.OperationKey, "fit",
		log.SamplesKey, len(samples),
		log.FeaturesKey, t.nFeatures_,
		log.ClassesKey, numClasses,
		log.DepthKey, treeDepth(root),
		log.LeavesKey, countLeaves(root),
	)
	return nil
}

// extraCandidate is one randomized split draw.
type extraCandidate struct {
	gain        float64
	feature     int
	threshold   float64
	numeric     bool
	valueToPath []int
	paths       int
}

type extraClassBuilder struct {
	cfg      *treeConfig
	measure  ImpurityMeasure
	nClasses int
	rng      *rand.Rand
	pool     classListPool
}

func (b *extraClassBuilder) build(samples []dataset.ClassSample, depth int) (Node, error) {
	parent, err := scoreFromSamples(samples, b.nClasses, b.measure)
	if err != nil {
		return nil, err
	}
	dist := parent.Distribution()
	weight := parent.SumWeight()
	impurity := parent.Score()

	if len(samples) < b.cfg.stopSize || impurity == 0 ||
		(b.cfg.maxDepth >= 0 && depth >= b.cfg.maxDepth) {
		return NewLeaf(dist, weight, impurity), nil
	}

	cand := b.drawCandidate(samples, parent)
	if cand == nil {
		return NewLeaf(dist, weight, impurity), nil
	}

	numNumeric := samples[0].Point.NumNumeric()
	var node splitter
	if cand.numeric {
		node = NewNumericSplit(cand.feature, []float64{cand.threshold}, weight, impurity)
	} else {
		node = NewCategoricalSplit(cand.feature, cand.feature-numNumeric, cand.valueToPath, cand.paths, weight, impurity)
	}
	node.setProbs(dist)

	parts := make([][]dataset.ClassSample, cand.paths)
	for i := range parts {
		parts[i] = b.pool.Get()
	}
	for _, smp := range samples {
		path := node.Route(smp.Point)
		parts[path] = append(parts[path], smp)
	}

	for i, part := range parts {
		if len(part) == 0 {
			node.setChild(i, NewLeaf(dist, 0, 0))
			b.pool.Put(part)
			continue
		}
		child, err := b.build(part, depth+1)
		b.pool.Put(part)
		if err != nil {
			return nil, err
		}
		node.setChild(i, child)
	}
	return node, nil
}

// drawCandidate examines the features in a random order, scoring a single
// random split per feature until selectionCount usable candidates have been
// seen, and returns the best. Returns nil when no feature yields a usable
// split.
func (b *extraClassBuilder) drawCandidate(samples []dataset.ClassSample, parent *ImpurityScore) *extraCandidate {
	numNumeric := samples[0].Point.NumNumeric()
	nFeatures := samples[0].Point.NumFeatures()

	var best *extraCandidate
	seen := 0
	for _, f := range b.rng.Perm(nFeatures) {
		var cand *extraCandidate
		if f < numNumeric {
			cand = b.randomNumericSplit(samples, f, parent)
		} else {
			cand = b.randomCategoricalSplit(samples, f, f-numNumeric, parent)
		}
		if cand == nil {
			continue
		}
		seen++
		if best == nil || cand.gain > best.gain {
			best = cand
		}
		if seen >= b.cfg.selectionCount {
			break
		}
	}
	return best
}

func (b *extraClassBuilder) randomNumericSplit(samples []dataset.ClassSample, feature int, parent *ImpurityScore) *extraCandidate {
	min, max := math.Inf(1), math.Inf(-1)
	for _, smp := range samples {
		v := smp.Point.NumericValue(feature)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min >= max {
		return nil
	}
	threshold := min + b.rng.Float64()*(max-min)

	left, err := NewImpurityScore(b.nClasses, b.measure)
	if err != nil {
		return nil
	}
	right, err := NewImpurityScore(b.nClasses, b.measure)
	if err != nil {
		return nil
	}
	for _, smp := range samples {
		if smp.Point.NumericValue(feature) <= threshold {
			left.AddPoint(smp.Point.Weight(), smp.Class)
		} else {
			right.AddPoint(smp.Point.Weight(), smp.Class)
		}
	}
	if left.SumWeight() <= 0 || right.SumWeight() <= 0 {
		return nil
	}
	return &extraCandidate{
		gain:      parent.Gain(left, right),
		feature:   feature,
		threshold: threshold,
		numeric:   true,
		paths:     2,
	}
}

func (b *extraClassBuilder) randomCategoricalSplit(samples []dataset.ClassSample, feature, catIdx int, parent *ImpurityScore) *extraCandidate {
	card := samples[0].Point.CatInfo(catIdx).Cardinality()
	if card < 2 {
		return nil
	}

	scores := make([]*ImpurityScore, card)
	for v := range scores {
		sc, err := NewImpurityScore(b.nClasses, b.measure)
		if err != nil {
			return nil
		}
		scores[v] = sc
	}
	for _, smp := range samples {
		scores[smp.Point.Categorical(catIdx)].AddPoint(smp.Point.Weight(), smp.Class)
	}

	if !b.cfg.binaryCategorical || card == 2 {
		nonEmpty := 0
		for _, sc := range scores {
			if sc.SumWeight() > 0 {
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
		return &extraCandidate{
			gain:        parent.Gain(scores...),
			feature:     feature,
			valueToPath: valueToPath,
			paths:       card,
		}
	}

	// Random binary grouping by coin flip, retried a few times until both
	// groups cover observed values.
	for attempt := 0; attempt < 8; attempt++ {
		valueToPath := make([]int, card)
		for v := range valueToPath {
			valueToPath[v] = b.rng.Intn(2)
		}
		left, err := NewImpurityScore(b.nClasses, b.measure)
		if err != nil {
			return nil
		}
		right, err := NewImpurityScore(b.nClasses, b.measure)
		if err != nil {
			return nil
		}
		for v, sc := range scores {
			target := right
			if valueToPath[v] == 0 {
				target = left
			}
			for c := 0; c < b.nClasses; c++ {
				target.AddPoint(sc.counts[c], c)
			}
		}
		if left.SumWeight() <= 0 || right.SumWeight() <= 0 {
			continue
		}
		return &extraCandidate{
			gain:        parent.Gain(left, right),
			feature:     feature,
			valueToPath: valueToPath,
			paths:       2,
		}
	}
	return nil
}

// Predict returns the predicted class label for each row of X.
func (t *ExtraTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := t.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best, bestP := 0, math.Inf(-1)
		for c := 0; c < t.nClasses_; c++ {
			if p := proba.At(i, c); p > bestP {
				best, bestP = c, p
			}
		}
		out.Set(i, 0, float64(t.classes_[best]))
	}
	return out, nil
}

// PredictProba returns the class probability distribution for each row of X.
func (t *ExtraTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("ExtraTreeClassifier", "PredictProba")
	}
	rows, cols := X.Dims()
	if cols != t.nFeatures_ {
		return nil, errors.NewDimensionError("ExtraTreeClassifier.PredictProba", t.nFeatures_, cols, 1)
	}

	points := dataset.PointsFromMatrix(X)
	out := mat.NewDense(rows, t.nClasses_, nil)
	parallel.ParallelizeWithThreshold(rows, predictRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			probs := classifyPoint(t.root, points[i])
			for c, p := range probs {
				out.Set(i, c, p)
			}
		}
	})
	return out, nil
}

// PredictPoint returns the class distribution for a single point.
func (t *ExtraTreeClassifier) PredictPoint(p *dataset.Point) ([]float64, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("ExtraTreeClassifier", "PredictPoint")
	}
	probs := classifyPoint(t.root, p)
	out := make([]float64, len(probs))
	copy(out, probs)
	return out, nil
}

// Score returns the mean accuracy of the tree on X against labels y.
func (t *ExtraTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := t.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// Classes returns the distinct labels seen during fitting, in sorted order.
func (t *ExtraTreeClassifier) Classes() []int {
	out := make([]int, len(t.classes_))
	copy(out, t.classes_)
	return out
}

// NClasses returns the number of target classes.
func (t *ExtraTreeClassifier) NClasses() int { return t.nClasses_ }

// Root exposes the fitted tree structure, nil before fitting.
func (t *ExtraTreeClassifier) Root() Node { return t.root }

// IsFitted reports whether the tree has been trained.
func (t *ExtraTreeClassifier) IsFitted() bool { return t.state.IsFitted() }

// GetDepth returns the depth of the fitted tree.
func (t *ExtraTreeClassifier) GetDepth() int { return treeDepth(t.root) }

// GetNLeaves returns the number of reachable prediction points.
func (t *ExtraTreeClassifier) GetNLeaves() int { return countLeaves(t.root) }

// GetFeatureImportances returns the normalized mean decrease in impurity per
// feature.
func (t *ExtraTreeClassifier) GetFeatureImportances() []float64 {
	if t.root == nil {
		return nil
	}
	return MeanDecreaseImpurity(t.root, t.nFeatures_)
}

// GetParams returns the hyperparameters of the tree.
func (t *ExtraTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":       t.cfg.criterion,
		"max_depth":       t.cfg.maxDepth,
		"stop_size":       t.cfg.stopSize,
		"selection_count": t.cfg.selectionCount,
		"seed":            t.cfg.seed,
	}
}

// SetParams updates hyperparameters from a map produced by GetParams.
func (t *ExtraTreeClassifier) SetParams(params map[string]interface{}) error {
	return setTreeParams(&t.cfg, params)
}

// ExtraTreeRegressor is an extremely randomized regression tree, splitting
// on weighted variance reduction of random candidate splits.
type ExtraTreeRegressor struct {
	state *model.StateManager
	cfg   treeConfig

	logger log.Logger

	nFeatures_ int
	root       Node
}

// NewExtraTreeRegressor creates an extremely randomized regression tree.
func NewExtraTreeRegressor(opts ...Option) *ExtraTreeRegressor {
	t := &ExtraTreeRegressor{
		state:  model.NewStateManager(),
		cfg:    defaultTreeConfig(),
		logger: log.GetLoggerWithName("tree.extra_tree_regressor"),
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

// Fit trains the tree on X (samples by features) and real targets y
// (samples by 1).
func (t *ExtraTreeRegressor) Fit(X, y mat.Matrix) error {
	samples, err := dataset.RegressionFromMatrix(X, y)
	if err != nil {
		return err
	}
	return t.FitSamples(samples)
}

// FitSamples trains the tree on weighted, possibly categorical samples.
func (t *ExtraTreeRegressor) FitSamples(samples []dataset.RegSample) error {
	if _, err := t.cfg.validate(true); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	t.nFeatures_ = samples[0].Point.NumFeatures()

	b := &extraRegBuilder{cfg: &t.cfg, rng: rand.New(rand.NewSource(t.cfg.seed))}
	root, err := b.build(samples, 0)
	if err != nil {
		return errors.NewTrainingError("ExtraTreeRegressor", "node_expansion", err)
	}

	t.root = root
	t.state.SetDimensions(t.nFeatures_, len(samples))
	t.state.SetFitted()
	t.logger.Info("Training completed",
		log.OperationKey, "fit",
		log.SamplesKey, len(samples),
		log.FeaturesKey, t.nFeatures_,
		log.DepthKey, treeDepth(root),
		log.LeavesKey, countLeaves(root),
	)
	return nil
}

type extraRegBuilder struct {
	cfg  *treeConfig
	rng  *rand.Rand
	pool regListPool
}

func (b *extraRegBuilder) build(samples []dataset.RegSample, depth int) (Node, error) {
	mean, variance := dataset.WeightedVariance(samples)
	weight := 0.0
	for _, smp := range samples {
		weight += smp.Point.Weight()
	}

	if len(samples) < b.cfg.stopSize || variance == 0 ||
		(b.cfg.maxDepth >= 0 && depth >= b.cfg.maxDepth) {
		return NewRegressionLeaf(mean, weight, variance), nil
	}

	cand := b.drawCandidate(samples, weight, variance)
	if cand == nil {
		return NewRegressionLeaf(mean, weight, variance), nil
	}

	numNumeric := samples[0].Point.NumNumeric()
	var node splitter
	if cand.numeric {
		node = NewNumericSplit(cand.feature, []float64{cand.threshold}, weight, variance)
	} else {
		node = NewCategoricalSplit(cand.feature, cand.feature-numNumeric, cand.valueToPath, cand.paths, weight, variance)
	}
	node.setValue(mean)

	parts := make([][]dataset.RegSample, cand.paths)
	for i := range parts {
		parts[i] = b.pool.Get()
	}
	for _, smp := range samples {
		path := node.Route(smp.Point)
		parts[path] = append(parts[path], smp)
	}

	for i, part := range parts {
		if len(part) == 0 {
			node.setChild(i, NewRegressionLeaf(mean, 0, 0))
			b.pool.Put(part)
			continue
		}
		child, err := b.build(part, depth+1)
		b.pool.Put(part)
		if err != nil {
			return nil, err
		}
		node.setChild(i, child)
	}
	return node, nil
}

func (b *extraRegBuilder) drawCandidate(samples []dataset.RegSample, totalWeight, parentVar float64) *extraCandidate {
	numNumeric := samples[0].Point.NumNumeric()
	nFeatures := samples[0].Point.NumFeatures()

	var best *extraCandidate
	seen := 0
	for _, f := range b.rng.Perm(nFeatures) {
		var cand *extraCandidate
		if f < numNumeric {
			cand = b.randomNumericSplit(samples, f, totalWeight, parentVar)
		} else {
			cand = b.randomCategoricalSplit(samples, f, f-numNumeric, totalWeight, parentVar)
		}
		if cand == nil {
			continue
		}
		seen++
		if best == nil || cand.gain > best.gain {
			best = cand
		}
		if seen >= b.cfg.selectionCount {
			break
		}
	}
	return best
}

func (b *extraRegBuilder) randomNumericSplit(samples []dataset.RegSample, feature int, totalWeight, parentVar float64) *extraCandidate {
	min, max := math.Inf(1), math.Inf(-1)
	for _, smp := range samples {
		v := smp.Point.NumericValue(feature)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min >= max {
		return nil
	}
	threshold := min + b.rng.Float64()*(max-min)

	var left, right regStats
	for _, smp := range samples {
		if smp.Point.NumericValue(feature) <= threshold {
			left.add(smp.Point.Weight(), smp.Target)
		} else {
			right.add(smp.Point.Weight(), smp.Target)
		}
	}
	if left.w <= 0 || right.w <= 0 || totalWeight <= 0 {
		return nil
	}
	return &extraCandidate{
		gain:      parentVar - (left.w/totalWeight)*left.variance() - (right.w/totalWeight)*right.variance(),
		feature:   feature,
		threshold: threshold,
		numeric:   true,
		paths:     2,
	}
}

func (b *extraRegBuilder) randomCategoricalSplit(samples []dataset.RegSample, feature, catIdx int, totalWeight, parentVar float64) *extraCandidate {
	card := samples[0].Point.CatInfo(catIdx).Cardinality()
	if card < 2 || totalWeight <= 0 {
		return nil
	}

	stats := make([]regStats, card)
	for _, smp := range samples {
		stats[smp.Point.Categorical(catIdx)].add(smp.Point.Weight(), smp.Target)
	}

	if !b.cfg.binaryCategorical || card == 2 {
		nonEmpty := 0
		gain := parentVar
		for _, st := range stats {
			if st.w <= 0 {
				continue
			}
			nonEmpty++
			gain -= (st.w / totalWeight) * st.variance()
		}
		if nonEmpty < 2 {
			return nil
		}
		valueToPath := make([]int, card)
		for v := range valueToPath {
			valueToPath[v] = v
		}
		return &extraCandidate{
			gain:        gain,
			feature:     feature,
			valueToPath: valueToPath,
			paths:       card,
		}
	}

	for attempt := 0; attempt < 8; attempt++ {
		valueToPath := make([]int, card)
		for v := range valueToPath {
			valueToPath[v] = b.rng.Intn(2)
		}
		var left, right regStats
		for v, st := range stats {
			if valueToPath[v] == 0 {
				left.w += st.w
				left.wy += st.wy
				left.wy2 += st.wy2
			} else {
				right.w += st.w
				right.wy += st.wy
				right.wy2 += st.wy2
			}
		}
		if left.w <= 0 || right.w <= 0 {
			continue
		}
		return &extraCandidate{
			gain:        parentVar - (left.w/totalWeight)*left.variance() - (right.w/totalWeight)*right.variance(),
			feature:     feature,
			valueToPath: valueToPath,
			paths:       2,
		}
	}
	return nil
}

// Predict returns the predicted value for each row of X.
func (t *ExtraTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("ExtraTreeRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != t.nFeatures_ {
		return nil, errors.NewDimensionError("ExtraTreeRegressor.Predict", t.nFeatures_, cols, 1)
	}

	points := dataset.PointsFromMatrix(X)
	out := mat.NewDense(rows, 1, nil)
	parallel.ParallelizeWithThreshold(rows, predictRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			out.Set(i, 0, regressPoint(t.root, points[i]))
		}
	})
	return out, nil
}

// PredictPoint returns the predicted value for a single point.
func (t *ExtraTreeRegressor) PredictPoint(p *dataset.Point) (float64, error) {
	if !t.state.IsFitted() {
		return 0, errors.NewNotFittedError("ExtraTreeRegressor", "PredictPoint")
	}
	return regressPoint(t.root, p), nil
}

// Score returns the coefficient of determination R^2 on X against y.
func (t *ExtraTreeRegressor) Score(X, y mat.Matrix) float64 {
	pred, err := t.Predict(X)
	if err != nil {
		return 0
	}
	r2, err := metrics.R2Score(y, pred)
	if err != nil {
		return 0
	}
	return r2
}

// Root exposes the fitted tree structure, nil before fitting.
func (t *ExtraTreeRegressor) Root() Node { return t.root }

// IsFitted reports whether the tree has been trained.
func (t *ExtraTreeRegressor) IsFitted() bool { return t.state.IsFitted() }

// GetDepth returns the depth of the fitted tree.
func (t *ExtraTreeRegressor) GetDepth() int { return treeDepth(t.root) }

// GetNLeaves returns the number of reachable prediction points.
func (t *ExtraTreeRegressor) GetNLeaves() int { return countLeaves(t.root) }

// GetFeatureImportances returns the normalized mean decrease in variance per
// feature.
func (t *ExtraTreeRegressor) GetFeatureImportances() []float64 {
	if t.root == nil {
		return nil
	}
	return MeanDecreaseImpurity(t.root, t.nFeatures_)
}

// GetParams returns the hyperparameters of the tree.
func (t *ExtraTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":       t.cfg.maxDepth,
		"stop_size":       t.cfg.stopSize,
		"selection_count": t.cfg.selectionCount,
		"seed":            t.cfg.seed,
	}
}

// SetParams updates hyperparameters from a map produced by GetParams.
func (t *ExtraTreeRegressor) SetParams(params map[string]interface{}) error {
	return setTreeParams(&t.cfg, params)
}
