// Package tree implements decision tree learning: single-split stumps, deep
// classification and regression trees with pluggable impurity measures and
// pruning, and extremely randomized trees.
//
// Trees train either from gonum matrices through the Fit / Predict estimator
// surface, or from dataset samples through FitSamples when categorical
// attributes or per-point weights are involved.
package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/core/model"
	"github.com/groveml/grove/core/parallel"
	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/metrics"
	"github.com/groveml/grove/pkg/errors"
	"github.com/groveml/grove/pkg/log"
)

// predictRowThreshold is the row count below which prediction stays on the
// calling goroutine.
const predictRowThreshold = 256

// treeConfig carries the knobs shared by the tree estimators. Fields that do
// not apply to a given estimator are ignored by it.
type treeConfig struct {
	criterion          string
	strategy           NumericStrategy
	maxDepth           int // negative means unlimited
	minSamples         int
	minResultSplitSize int
	pruneMethod        PruneMethod
	testProportion     float64
	maxFeatures        int // <= 0 means all features
	removeNumeric      bool
	binaryCategorical  bool
	stopSize           int
	selectionCount     int
	seed               int64
	workers            int
}

func defaultTreeConfig() treeConfig {
	return treeConfig{
		criterion:          "gini",
		strategy:           BinaryBestGain,
		maxDepth:           -1,
		minSamples:         2,
		minResultSplitSize: 5,
		pruneMethod:        PruneNone,
		testProportion:     0.1,
		maxFeatures:        0,
		stopSize:           5,
		selectionCount:     1,
		seed:               1,
	}
}

// Option configures a tree estimator.
type Option func(*treeConfig)

// WithCriterion sets the impurity criterion by name: "gini", "entropy",
// "entropy_ratio" or "classification_error". Regression trees ignore it.
func WithCriterion(criterion string) Option {
	return func(c *treeConfig) { c.criterion = criterion }
}

// WithNumericStrategy sets the numeric split search strategy for
// classification trees.
func WithNumericStrategy(strategy NumericStrategy) Option {
	return func(c *treeConfig) { c.strategy = strategy }
}

// WithMaxDepth limits tree depth. Negative means unlimited; 0 forces a
// single leaf.
func WithMaxDepth(depth int) Option {
	return func(c *treeConfig) { c.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples a node needs before
// a split is attempted.
func WithMinSamplesSplit(n int) Option {
	return func(c *treeConfig) { c.minSamples = n }
}

// WithMinResultSplitSize sets the minimum number of samples each side of a
// numeric split must keep.
func WithMinResultSplitSize(n int) Option {
	return func(c *treeConfig) { c.minResultSplitSize = n }
}

// WithPruning selects the post-training pruning method.
func WithPruning(method PruneMethod) Option {
	return func(c *treeConfig) { c.pruneMethod = method }
}

// WithTestProportion sets the fraction of training data held out for
// reduced-error pruning, in [0, 1]. Zero evaluates pruning on the training
// set itself.
func WithTestProportion(p float64) Option {
	return func(c *treeConfig) { c.testProportion = p }
}

// WithMaxFeatures limits every node's split search to a random subset of the
// available features. Non-positive values consider all features.
func WithMaxFeatures(n int) Option {
	return func(c *treeConfig) { c.maxFeatures = n }
}

// WithRemoveNumericFeatures also removes numeric features from descendant
// consideration after they are split on, as is always done for categorical
// features.
func WithRemoveNumericFeatures(remove bool) Option {
	return func(c *treeConfig) { c.removeNumeric = remove }
}

// WithBinaryCategorical reduces categorical splits to the best binary
// grouping instead of a per-value fan-out.
func WithBinaryCategorical(binary bool) Option {
	return func(c *treeConfig) { c.binaryCategorical = binary }
}

// WithStopSize sets the node size at which extremely randomized trees stop
// splitting.
func WithStopSize(n int) Option {
	return func(c *treeConfig) { c.stopSize = n }
}

// WithSelectionCount sets how many random features an extremely randomized
// tree draws a candidate split from at each node.
func WithSelectionCount(n int) Option {
	return func(c *treeConfig) { c.selectionCount = n }
}

// WithSeed seeds the random number generation used for feature subsampling,
// holdout selection and randomized splits. Fits with the same seed and the
// same single-worker configuration are reproducible.
func WithSeed(seed int64) Option {
	return func(c *treeConfig) { c.seed = seed }
}

// WithWorkers bounds the number of goroutines used for node expansion.
// Non-positive selects the number of CPUs.
func WithWorkers(workers int) Option {
	return func(c *treeConfig) { c.workers = workers }
}

func (c *treeConfig) validate(regression bool) (ImpurityMeasure, error) {
	measure := Gini
	if !regression {
		var err error
		if measure, err = ParseImpurity(c.criterion); err != nil {
			return 0, err
		}
	}
	if c.minSamples < 2 {
		return 0, errors.NewValidationError("minSamplesSplit", "must be at least 2", c.minSamples)
	}
	if c.minResultSplitSize <= 1 {
		return 0, errors.NewValidationError("minResultSplitSize", "must be greater than 1", c.minResultSplitSize)
	}
	if c.testProportion < 0 || c.testProportion > 1 {
		return 0, errors.NewValidationError("testProportion", "must be in [0, 1]", c.testProportion)
	}
	if c.pruneMethod < PruneNone || c.pruneMethod > PruneErrorBased {
		return 0, errors.NewValidationError("pruneMethod", "unknown pruning method", int(c.pruneMethod))
	}
	if regression && c.pruneMethod == PruneErrorBased {
		return 0, errors.NewValidationError("pruneMethod", "error-based pruning applies to classification only", int(c.pruneMethod))
	}
	if c.stopSize < 1 {
		return 0, errors.NewValidationError("stopSize", "must be at least 1", c.stopSize)
	}
	if c.selectionCount < 1 {
		return 0, errors.NewValidationError("selectionCount", "must be at least 1", c.selectionCount)
	}
	return measure, nil
}

// deriveSeed produces the seed for the child on the given path, so node-level
// randomness is a pure function of the tree seed and the node's position
// rather than of goroutine scheduling.
func deriveSeed(seed int64, path int) int64 {
	z := uint64(seed) + 0x9e3779b97f4a7c15*(uint64(path)+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4b96f
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

// subsetFeatures draws n distinct features from the set using rng. The full
// set is returned when n is non-positive or not smaller than the set.
func subsetFeatures(features *dataset.FeatureSet, n int, rng *rand.Rand) *dataset.FeatureSet {
	if n <= 0 || n >= features.Len() {
		return features
	}
	values := features.Values()
	perm := rng.Perm(len(values))
	picked := make([]int, n)
	for i := 0; i < n; i++ {
		picked[i] = values[perm[i]]
	}
	return dataset.NewFeatureSet(picked...)
}

// DecisionTreeClassifier is a decision tree for classification. Nodes are
// expanded in parallel across a bounded worker group; split search within a
// node follows the configured impurity criterion and numeric strategy.
type DecisionTreeClassifier struct {
	state *model.StateManager
	cfg   treeConfig

	logger log.Logger

	classes_   []int
	nClasses_  int
	nFeatures_ int
	root       Node
}

// NewDecisionTreeClassifier creates a classification tree with the given
// options. Defaults: Gini criterion, binary numeric splits, unlimited depth,
// no pruning.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := &DecisionTreeClassifier{
		state:  model.NewStateManager(),
		cfg:    defaultTreeConfig(),
		logger: log.GetLoggerWithName("tree.decision_tree_classifier"),
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

// extractClasses returns the sorted distinct integer labels of y and a map
// from label to class index.
func extractClasses(y mat.Matrix) ([]int, map[int]int) {
	r, _ := y.Dims()
	seen := map[int]bool{}
	warned := false
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if !warned && v != math.Trunc(v) {
			errors.Warn(errors.NewDataConversionWarning("float64", "int", "non-integral class label truncated"))
			warned = true
		}
		seen[int(v)] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return classes, index
}

// Fit trains the tree on X (samples by features) and integer labels y
// (samples by 1).
func (t *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	xr, _ := X.Dims()
	yr, yc := y.Dims()
	if xr != yr || yc != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", xr, yr, 0)
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
	_, cols := X.Dims()
	return t.FitSamples(samples, dataset.AllFeatures(cols, 0), len(classes))
}

// FitSamples trains the tree on weighted, possibly categorical samples.
// features enumerates the combined feature indices the tree may split on,
// and numClasses the number of target classes. Sample class indices must lie
// in [0, numClasses).
func (t *DecisionTreeClassifier) FitSamples(samples []dataset.ClassSample, features *dataset.FeatureSet, numClasses int) error {
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

	train := samples
	var held []dataset.ClassSample
	if t.cfg.pruneMethod == PruneReducedError {
		train, held = splitHoldoutClass(samples, t.cfg.testProportion, t.cfg.seed)
	}

	b := &classBuilder{cfg: &t.cfg, measure: measure, nClasses: numClasses, g: parallel.NewGroup(t.cfg.workers)}
	root, err := b.build(train, features.Clone(), 0, t.cfg.seed)
	if err == nil {
		err = b.g.Wait()
	} else {
		b.g.Wait()
	}
	if err != nil {
		return errors.NewTrainingError("DecisionTreeClassifier", "node_expansion", err)
	}

	pruned := 0
	if t.cfg.pruneMethod != PruneNone {
		pruned = pruneClassTree(root, t.cfg.pruneMethod, held)
	}

	t.root = root
	t.state.SetDimensions(t.nFeatures_, len(samples))
	t.state.SetFitted()
	t.logger.Info("Training completed",
		log.OperationKey, "fit",
		log.SamplesKey, len(samples),
		log.WeightSumKey, dataset.WeightSum(samples),
		log.FeaturesKey, t.nFeatures_,
		log.ClassesKey, numClasses,
		log.DepthKey, treeDepth(root),
		log.LeavesKey, countLeaves(root),
		log.PrunedPathsKey, pruned,
	)
	return nil
}

func identityClasses(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// splitHoldoutClass shuffles the samples with the given seed and carves off
// proportion of them for pruning evaluation. With a zero proportion the
// training set itself is reused for evaluation.
func splitHoldoutClass(samples []dataset.ClassSample, proportion float64, seed int64) (train, held []dataset.ClassSample) {
	if proportion <= 0 {
		return samples, samples
	}
	shuffled := make([]dataset.ClassSample, len(samples))
	copy(shuffled, samples)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	cut := int(proportion * float64(len(shuffled)))
	if cut >= len(shuffled) {
		cut = len(shuffled) - 1
	}
	return shuffled[cut:], shuffled[:cut]
}

// classBuilder expands classification tree nodes. Parents return as soon as
// their children are submitted to the group; each child task writes only its
// own slot of the parent's child array.
type classBuilder struct {
	cfg      *treeConfig
	measure  ImpurityMeasure
	nClasses int
	g        *parallel.Group
}

func (b *classBuilder) build(samples []dataset.ClassSample, features *dataset.FeatureSet, depth int, seed int64) (Node, error) {
	parent, err := scoreFromSamples(samples, b.nClasses, b.measure)
	if err != nil {
		return nil, err
	}
	dist := parent.Distribution()
	weight := parent.SumWeight()
	impurity := parent.Score()

	if len(samples) < b.cfg.minSamples || features.Len() == 0 || impurity == 0 ||
		(b.cfg.maxDepth >= 0 && depth >= b.cfg.maxDepth) {
		return NewLeaf(dist, weight, impurity), nil
	}

	candidates := features
	if b.cfg.maxFeatures > 0 && b.cfg.maxFeatures < features.Len() {
		rng := rand.New(rand.NewSource(seed))
		candidates = subsetFeatures(features, b.cfg.maxFeatures, rng)
	}

	stump := &DecisionStump{
		measure:            b.measure,
		strategy:           b.cfg.strategy,
		minResultSplitSize: b.cfg.minResultSplitSize,
		binaryCategorical:  b.cfg.binaryCategorical,
		numClasses:         b.nClasses,
		feature:            -1,
	}
	parts, err := stump.TrainClassifier(samples, candidates)
	if err != nil {
		return nil, err
	}
	if stump.FeatureIndex() < 0 {
		return NewLeaf(dist, weight, impurity), nil
	}

	node := splitToNode(stump, weight, impurity)
	node.setProbs(dist)

	childFeatures := features.Clone()
	if stump.thresholds == nil || b.cfg.removeNumeric {
		childFeatures.Remove(stump.FeatureIndex())
	}

	for i, part := range parts {
		if len(part) == 0 {
			node.setChild(i, NewLeaf(dist, 0, 0))
			continue
		}
		i, part := i, part
		childSeed := deriveSeed(seed, i)
		b.g.Go(func() error {
			child, err := b.build(part, childFeatures.Clone(), depth+1, childSeed)
			if err != nil {
				return err
			}
			node.setChild(i, child)
			return nil
		})
	}
	return node, nil
}

// splitToNode converts a trained stump into the matching tree node with an
// empty child array.
func splitToNode(s *DecisionStump, weight, impurity float64) splitter {
	if s.thresholds != nil {
		return NewNumericSplit(s.feature, s.thresholds, weight, impurity)
	}
	return NewCategoricalSplit(s.feature, s.catIdx, s.valueToPath, s.paths, weight, impurity)
}

// Predict returns the predicted class label for each row of X.
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
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
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeClassifier", "PredictProba")
	}
	rows, cols := X.Dims()
	if cols != t.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.PredictProba", t.nFeatures_, cols, 1)
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
func (t *DecisionTreeClassifier) PredictPoint(p *dataset.Point) ([]float64, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeClassifier", "PredictPoint")
	}
	probs := classifyPoint(t.root, p)
	out := make([]float64, len(probs))
	copy(out, probs)
	return out, nil
}

// Score returns the mean accuracy of the tree on X against labels y.
func (t *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
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
func (t *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(t.classes_))
	copy(out, t.classes_)
	return out
}

// NClasses returns the number of target classes.
func (t *DecisionTreeClassifier) NClasses() int { return t.nClasses_ }

// Root exposes the fitted tree structure, nil before fitting.
func (t *DecisionTreeClassifier) Root() Node { return t.root }

// IsFitted reports whether the tree has been trained.
func (t *DecisionTreeClassifier) IsFitted() bool { return t.state.IsFitted() }

// GetDepth returns the depth of the fitted tree over enabled paths.
func (t *DecisionTreeClassifier) GetDepth() int { return treeDepth(t.root) }

// GetNLeaves returns the number of reachable prediction points.
func (t *DecisionTreeClassifier) GetNLeaves() int { return countLeaves(t.root) }

// GetFeatureImportances returns the normalized mean decrease in impurity per
// feature.
func (t *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if t.root == nil {
		return nil
	}
	return MeanDecreaseImpurity(t.root, t.nFeatures_)
}

// GetParams returns the hyperparameters of the tree.
func (t *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             t.cfg.criterion,
		"numeric_strategy":      t.cfg.strategy.String(),
		"max_depth":             t.cfg.maxDepth,
		"min_samples_split":     t.cfg.minSamples,
		"min_result_split_size": t.cfg.minResultSplitSize,
		"prune_method":          int(t.cfg.pruneMethod),
		"test_proportion":       t.cfg.testProportion,
		"max_features":          t.cfg.maxFeatures,
		"seed":                  t.cfg.seed,
	}
}

// SetParams updates hyperparameters from a map produced by GetParams.
// Unknown keys are rejected.
func (t *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	return setTreeParams(&t.cfg, params)
}

func setTreeParams(cfg *treeConfig, params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "criterion":
			var v string
			if v, ok = value.(string); ok {
				cfg.criterion = v
			}
		case "numeric_strategy":
			var v string
			if v, ok = value.(string); ok {
				switch v {
				case BinaryBestGain.String():
					cfg.strategy = BinaryBestGain
				case PDFIntersections.String():
					cfg.strategy = PDFIntersections
				default:
					ok = false
				}
			}
		case "max_depth":
			ok = setIntParam(&cfg.maxDepth, value)
		case "min_samples_split":
			ok = setIntParam(&cfg.minSamples, value)
		case "min_result_split_size":
			ok = setIntParam(&cfg.minResultSplitSize, value)
		case "prune_method":
			var v int
			if v, ok = toInt(value); ok {
				cfg.pruneMethod = PruneMethod(v)
			}
		case "test_proportion":
			var v float64
			if v, ok = value.(float64); ok {
				cfg.testProportion = v
			}
		case "max_features":
			ok = setIntParam(&cfg.maxFeatures, value)
		case "stop_size":
			ok = setIntParam(&cfg.stopSize, value)
		case "selection_count":
			ok = setIntParam(&cfg.selectionCount, value)
		case "seed":
			switch v := value.(type) {
			case int64:
				cfg.seed = v
			case int:
				cfg.seed = int64(v)
			default:
				ok = false
			}
		default:
			return errors.NewValidationError("params", "unknown parameter", key)
		}
		if !ok {
			return errors.NewValidationError(key, "invalid parameter value", value)
		}
	}
	return nil
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func setIntParam(dst *int, value interface{}) bool {
	v, ok := toInt(value)
	if ok {
		*dst = v
	}
	return ok
}

// DecisionTreeRegressor is a decision tree for regression, splitting on
// weighted variance reduction.
type DecisionTreeRegressor struct {
	state *model.StateManager
	cfg   treeConfig

	logger log.Logger

	nFeatures_ int
	root       Node
}

// NewDecisionTreeRegressor creates a regression tree with the given options.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{
		state:  model.NewStateManager(),
		cfg:    defaultTreeConfig(),
		logger: log.GetLoggerWithName("tree.decision_tree_regressor"),
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

// Fit trains the tree on X (samples by features) and real targets y
// (samples by 1).
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	samples, err := dataset.RegressionFromMatrix(X, y)
	if err != nil {
		return err
	}
	_, cols := X.Dims()
	return t.FitSamples(samples, dataset.AllFeatures(cols, 0))
}

// FitSamples trains the tree on weighted, possibly categorical samples.
func (t *DecisionTreeRegressor) FitSamples(samples []dataset.RegSample, features *dataset.FeatureSet) error {
	if _, err := t.cfg.validate(true); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	t.nFeatures_ = samples[0].Point.NumFeatures()

	train := samples
	var held []dataset.RegSample
	if t.cfg.pruneMethod == PruneReducedError {
		train, held = splitHoldoutReg(samples, t.cfg.testProportion, t.cfg.seed)
	}

	b := &regBuilder{cfg: &t.cfg, g: parallel.NewGroup(t.cfg.workers)}
	root, err := b.build(train, features.Clone(), 0, t.cfg.seed)
	if err == nil {
		err = b.g.Wait()
	} else {
		b.g.Wait()
	}
	if err != nil {
		return errors.NewTrainingError("DecisionTreeRegressor", "node_expansion", err)
	}

	pruned := 0
	if t.cfg.pruneMethod == PruneReducedError {
		pruned = pruneRegTree(root, held)
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
		log.PrunedPathsKey, pruned,
	)
	return nil
}

func splitHoldoutReg(samples []dataset.RegSample, proportion float64, seed int64) (train, held []dataset.RegSample) {
	if proportion <= 0 {
		return samples, samples
	}
	shuffled := make([]dataset.RegSample, len(samples))
	copy(shuffled, samples)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	cut := int(proportion * float64(len(shuffled)))
	if cut >= len(shuffled) {
		cut = len(shuffled) - 1
	}
	return shuffled[cut:], shuffled[:cut]
}

type regBuilder struct {
	cfg *treeConfig
	g   *parallel.Group
}

func (b *regBuilder) build(samples []dataset.RegSample, features *dataset.FeatureSet, depth int, seed int64) (Node, error) {
	mean, variance := dataset.WeightedVariance(samples)
	weight := 0.0
	for _, smp := range samples {
		weight += smp.Point.Weight()
	}

	if len(samples) < b.cfg.minSamples || features.Len() == 0 || variance == 0 ||
		(b.cfg.maxDepth >= 0 && depth >= b.cfg.maxDepth) {
		return NewRegressionLeaf(mean, weight, variance), nil
	}

	candidates := features
	if b.cfg.maxFeatures > 0 && b.cfg.maxFeatures < features.Len() {
		rng := rand.New(rand.NewSource(seed))
		candidates = subsetFeatures(features, b.cfg.maxFeatures, rng)
	}

	stump := &DecisionStump{
		measure:            Gini,
		strategy:           BinaryBestGain,
		minResultSplitSize: b.cfg.minResultSplitSize,
		feature:            -1,
	}
	parts, err := stump.TrainRegressor(samples, candidates)
	if err != nil {
		return nil, err
	}
	if stump.FeatureIndex() < 0 {
		return NewRegressionLeaf(mean, weight, variance), nil
	}

	node := splitToNode(stump, weight, variance)
	node.setValue(mean)

	childFeatures := features.Clone()
	if stump.thresholds == nil || b.cfg.removeNumeric {
		childFeatures.Remove(stump.FeatureIndex())
	}

	for i, part := range parts {
		if len(part) == 0 {
			node.setChild(i, NewRegressionLeaf(mean, 0, 0))
			continue
		}
		i, part := i, part
		childSeed := deriveSeed(seed, i)
		b.g.Go(func() error {
			child, err := b.build(part, childFeatures.Clone(), depth+1, childSeed)
			if err != nil {
				return err
			}
			node.setChild(i, child)
			return nil
		})
	}
	return node, nil
}

// Predict returns the predicted value for each row of X.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !t.state.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != t.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", t.nFeatures_, cols, 1)
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
func (t *DecisionTreeRegressor) PredictPoint(p *dataset.Point) (float64, error) {
	if !t.state.IsFitted() {
		return 0, errors.NewNotFittedError("DecisionTreeRegressor", "PredictPoint")
	}
	return regressPoint(t.root, p), nil
}

// Score returns the coefficient of determination R^2 on X against y.
func (t *DecisionTreeRegressor) Score(X, y mat.Matrix) float64 {
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
func (t *DecisionTreeRegressor) Root() Node { return t.root }

// IsFitted reports whether the tree has been trained.
func (t *DecisionTreeRegressor) IsFitted() bool { return t.state.IsFitted() }

// GetDepth returns the depth of the fitted tree over enabled paths.
func (t *DecisionTreeRegressor) GetDepth() int { return treeDepth(t.root) }

// GetNLeaves returns the number of reachable prediction points.
func (t *DecisionTreeRegressor) GetNLeaves() int { return countLeaves(t.root) }

// GetFeatureImportances returns the normalized mean decrease in variance per
// feature.
func (t *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	if t.root == nil {
		return nil
	}
	return MeanDecreaseImpurity(t.root, t.nFeatures_)
}

// GetParams returns the hyperparameters of the tree.
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":             t.cfg.maxDepth,
		"min_samples_split":     t.cfg.minSamples,
		"min_result_split_size": t.cfg.minResultSplitSize,
		"prune_method":          int(t.cfg.pruneMethod),
		"test_proportion":       t.cfg.testProportion,
		"max_features":          t.cfg.maxFeatures,
		"seed":                  t.cfg.seed,
	}
}

// SetParams updates hyperparameters from a map produced by GetParams.
func (t *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	return setTreeParams(&t.cfg, params)
}
