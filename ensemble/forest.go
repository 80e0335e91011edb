// Package ensemble implements bagged tree ensembles: random forests over
// decision trees and extremely randomized tree ensembles.
//
// Training is data-parallel across trees. Each tree draws its own bootstrap
// sample and random feature subsets from a seed derived from the ensemble
// seed and the tree index, so results are reproducible for a fixed seed.
package ensemble

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/core/model"
	"github.com/groveml/grove/core/parallel"
	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/metrics"
	"github.com/groveml/grove/pkg/errors"
	"github.com/groveml/grove/pkg/log"
	"github.com/groveml/grove/tree"
)

// forestConfig carries the ensemble-level knobs shared by the forest types.
type forestConfig struct {
	forestSize     int
	extraSamples   int
	featureSamples int // <= 0 selects the per-task heuristic
	computeOOB     bool
	stopSize       int
	selectionCount int // <= 0 selects the per-task heuristic
	seed           int64
	treeOpts       []tree.Option
}

func defaultForestConfig() forestConfig {
	return forestConfig{
		forestSize:   100,
		extraSamples: 0,
		computeOOB:   false,
		stopSize:     5,
		seed:         1,
	}
}

// ForestOption configures an ensemble.
type ForestOption func(*forestConfig)

// WithForestSize sets the number of trees trained.
func WithForestSize(n int) ForestOption {
	return func(c *forestConfig) { c.forestSize = n }
}

// WithExtraSamples makes every bootstrap draw contain len(samples)+n points.
// n must be non-negative.
func WithExtraSamples(n int) ForestOption {
	return func(c *forestConfig) { c.extraSamples = n }
}

// WithFeatureSamples fixes the number of features each tree node considers.
// Non-positive selects sqrt(features) for classification and features/3 for
// regression.
func WithFeatureSamples(n int) ForestOption {
	return func(c *forestConfig) { c.featureSamples = n }
}

// WithOOB enables out-of-bag error estimation during fitting.
func WithOOB(enabled bool) ForestOption {
	return func(c *forestConfig) { c.computeOOB = enabled }
}

// WithStopSize sets the leaf stop size for extremely randomized ensembles.
func WithStopSize(n int) ForestOption {
	return func(c *forestConfig) { c.stopSize = n }
}

// WithSelectionCount sets the number of random split candidates per node for
// extremely randomized ensembles. Non-positive selects sqrt(features) for
// classification and features/3 for regression.
func WithSelectionCount(n int) ForestOption {
	return func(c *forestConfig) { c.selectionCount = n }
}

// WithSeed seeds the ensemble's random number generation.
func WithSeed(seed int64) ForestOption {
	return func(c *forestConfig) { c.seed = seed }
}

// WithTreeOptions passes additional options to every base tree.
func WithTreeOptions(opts ...tree.Option) ForestOption {
	return func(c *forestConfig) { c.treeOpts = append(c.treeOpts, opts...) }
}

func (c *forestConfig) validate() error {
	if c.forestSize < 1 {
		return errors.NewValidationError("forestSize", "must be at least 1", c.forestSize)
	}
	if c.extraSamples < 0 {
		return errors.NewValidationError("extraSamples", "must be non-negative", c.extraSamples)
	}
	return nil
}

// treeSeed derives the seed for tree i from the ensemble seed, independent
// of scheduling.
func treeSeed(seed int64, i int) int64 {
	z := uint64(seed) + 0x9e3779b97f4a7c15*(uint64(i)+1)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4b96f
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
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

// RandomForestClassifier is a bootstrap-aggregated ensemble of decision
// trees, each trained on a resampled copy of the data with random feature
// subsets at every node. Prediction averages the class distributions of all
// trees.
type RandomForestClassifier struct {
	state *model.StateManager
	cfg   forestConfig

	logger log.Logger

	trees        []*tree.DecisionTreeClassifier
	classes_     []int
	nClasses_    int
	nFeatures_   int
	oobError_    float64
	importances_ []float64
}

// NewRandomForestClassifier creates a forest of 100 trees with sqrt(features)
// feature sampling.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	f := &RandomForestClassifier{
		state:     model.NewStateManager(),
		cfg:       defaultForestConfig(),
		logger:    log.GetLoggerWithName("ensemble.random_forest_classifier"),
		oobError_: math.NaN(),
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit trains the forest on X (samples by features) and integer labels y
// (samples by 1).
func (f *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	xr, _ := X.Dims()
	yr, yc := y.Dims()
	if xr != yr || yc != 1 {
		return errors.NewDimensionError("RandomForestClassifier.Fit", xr, yr, 0)
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

	f.classes_ = classes
	_, cols := X.Dims()
	return f.FitSamples(samples, dataset.AllFeatures(cols, 0), len(classes))
}

// FitSamples trains the forest on weighted, possibly categorical samples.
func (f *RandomForestClassifier) FitSamples(samples []dataset.ClassSample, features *dataset.FeatureSet, numClasses int) error {
	if err := f.cfg.validate(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	if numClasses < 1 {
		return errors.NewValidationError("numClasses", "must be at least 1", numClasses)
	}
	if f.classes_ == nil {
		f.classes_ = identityClasses(numClasses)
	}
	f.nClasses_ = numClasses
	f.nFeatures_ = samples[0].Point.NumFeatures()

	n := len(samples)
	draws := n + f.cfg.extraSamples
	maxFeatures := f.cfg.featureSamples
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(features.Len())))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	trees := make([]*tree.DecisionTreeClassifier, f.cfg.forestSize)
	impSum := make([]float64, f.nFeatures_)
	var impMu sync.Mutex

	// Per-row locks let trees report out-of-bag votes concurrently while
	// only contending on the rows they both missed.
	var oobVotes [][]float64
	var rowLocks []sync.Mutex
	if f.cfg.computeOOB {
		oobVotes = make([][]float64, n)
		rowLocks = make([]sync.Mutex, n)
	}

	var errMu sync.Mutex
	var firstErr error

	parallel.Parallelize(f.cfg.forestSize, func(start, end int) {
		for i := start; i < end; i++ {
			seed := treeSeed(f.cfg.seed, i)
			rng := rand.New(rand.NewSource(seed))

			inBag := make([]bool, n)
			boot := make([]dataset.ClassSample, draws)
			for d := range boot {
				idx := rng.Intn(n)
				boot[d] = samples[idx]
				inBag[idx] = true
			}

			opts := append([]tree.Option{}, f.cfg.treeOpts...)
			opts = append(opts,
				tree.WithMaxFeatures(maxFeatures),
				tree.WithSeed(seed),
				tree.WithWorkers(1),
			)
			clf := tree.NewDecisionTreeClassifier(opts...)
			if err := clf.FitSamples(boot, features.Clone(), numClasses); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			trees[i] = clf

			impMu.Lock()
			floats.Add(impSum, clf.GetFeatureImportances())
			impMu.Unlock()

			if !f.cfg.computeOOB {
				continue
			}
			for idx, in := range inBag {
				if in {
					continue
				}
				probs, err := clf.PredictPoint(samples[idx].Point)
				if err != nil {
					continue
				}
				rowLocks[idx].Lock()
				if oobVotes[idx] == nil {
					oobVotes[idx] = make([]float64, numClasses)
				}
				floats.Add(oobVotes[idx], probs)
				rowLocks[idx].Unlock()
			}
		}
	})
	if firstErr != nil {
		return errors.NewTrainingError("RandomForestClassifier", "bootstrap", firstErr)
	}

	f.trees = trees
	f.importances_ = impSum
	normalize(f.importances_)

	if f.cfg.computeOOB {
		errWeight, totalWeight := 0.0, 0.0
		for idx, votes := range oobVotes {
			if votes == nil {
				continue
			}
			w := samples[idx].Point.Weight()
			totalWeight += w
			if argmax(votes) != samples[idx].Class {
				errWeight += w
			}
		}
		if totalWeight > 0 {
			f.oobError_ = errWeight / totalWeight
		}
	}

	f.state.SetDimensions(f.nFeatures_, n)
	f.state.SetFitted()
	f.logger.Info("Training completed",
		log.OperationKey, "fit",
		log.TreesKey, f.cfg.forestSize,
		log.SamplesKey, n,
		log.FeaturesKey, f.nFeatures_,
		log.ClassesKey, numClasses,
		log.OOBErrorKey, f.oobError_,
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

func argmax(xs []float64) int {
	best, bestV := 0, math.Inf(-1)
	for i, v := range xs {
		if v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

func normalize(xs []float64) {
	sum := floats.Sum(xs)
	if sum <= 0 {
		return
	}
	floats.Scale(1/sum, xs)
}

// Predict returns the majority-vote class label for each row of X.
func (f *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best, bestP := 0, math.Inf(-1)
		for c := 0; c < f.nClasses_; c++ {
			if p := proba.At(i, c); p > bestP {
				best, bestP = c, p
			}
		}
		out.Set(i, 0, float64(f.classes_[best]))
	}
	return out, nil
}

// PredictProba returns the class distribution for each row of X, averaged
// over every tree in the forest.
func (f *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", f.nFeatures_, cols, 1)
	}

	points := dataset.PointsFromMatrix(X)
	out := mat.NewDense(rows, f.nClasses_, nil)
	parallel.Parallelize(rows, func(start, end int) {
		for i := start; i < end; i++ {
			acc := make([]float64, f.nClasses_)
			for _, t := range f.trees {
				probs, err := t.PredictPoint(points[i])
				if err != nil {
					continue
				}
				floats.Add(acc, probs)
			}
			floats.Scale(1/float64(len(f.trees)), acc)
			for c, p := range acc {
				out.Set(i, c, p)
			}
		}
	})
	return out, nil
}

// PredictPoint returns the averaged class distribution for a single point.
func (f *RandomForestClassifier) PredictPoint(p *dataset.Point) ([]float64, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictPoint")
	}
	acc := make([]float64, f.nClasses_)
	for _, t := range f.trees {
		probs, err := t.PredictPoint(p)
		if err != nil {
			return nil, err
		}
		floats.Add(acc, probs)
	}
	floats.Scale(1/float64(len(f.trees)), acc)
	return acc, nil
}

// Score returns the mean accuracy on X against labels y.
func (f *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := f.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(y, pred)
	if err != nil {
		return 0
	}
	return acc
}

// OOBError returns the weighted out-of-bag misclassification rate measured
// during fitting. It fails unless the forest was fitted with WithOOB(true).
func (f *RandomForestClassifier) OOBError() (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("RandomForestClassifier", "OOBError")
	}
	if !f.cfg.computeOOB {
		return 0, errors.NewValueError("RandomForestClassifier.OOBError", "fit with WithOOB(true) to track out-of-bag error")
	}
	return f.oobError_, nil
}

// Trees returns the fitted base trees.
func (f *RandomForestClassifier) Trees() []*tree.DecisionTreeClassifier {
	return f.trees
}

// Classes returns the distinct labels seen during fitting, in sorted order.
func (f *RandomForestClassifier) Classes() []int {
	out := make([]int, len(f.classes_))
	copy(out, f.classes_)
	return out
}

// NClasses returns the number of target classes.
func (f *RandomForestClassifier) NClasses() int { return f.nClasses_ }

// IsFitted reports whether the forest has been trained.
func (f *RandomForestClassifier) IsFitted() bool { return f.state.IsFitted() }

// GetFeatureImportances returns the normalized mean decrease in impurity,
// averaged across trees.
func (f *RandomForestClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(f.importances_))
	copy(out, f.importances_)
	return out
}

// GetParams returns the hyperparameters of the forest.
func (f *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"forest_size":     f.cfg.forestSize,
		"extra_samples":   f.cfg.extraSamples,
		"feature_samples": f.cfg.featureSamples,
		"compute_oob":     f.cfg.computeOOB,
		"seed":            f.cfg.seed,
	}
}

// RandomForestRegressor is the regression counterpart of
// RandomForestClassifier, averaging tree predictions and scoring splits by
// variance reduction with features/3 feature sampling by default.
type RandomForestRegressor struct {
	state *model.StateManager
	cfg   forestConfig

	logger log.Logger

	trees        []*tree.DecisionTreeRegressor
	nFeatures_   int
	oobError_    float64
	importances_ []float64
}

// NewRandomForestRegressor creates a regression forest of 100 trees.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	f := &RandomForestRegressor{
		state:     model.NewStateManager(),
		cfg:       defaultForestConfig(),
		logger:    log.GetLoggerWithName("ensemble.random_forest_regressor"),
		oobError_: math.NaN(),
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit trains the forest on X (samples by features) and real targets y
// (samples by 1).
func (f *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	samples, err := dataset.RegressionFromMatrix(X, y)
	if err != nil {
		return err
	}
	_, cols := X.Dims()
	return f.FitSamples(samples, dataset.AllFeatures(cols, 0))
}

// FitSamples trains the forest on weighted, possibly categorical samples.
func (f *RandomForestRegressor) FitSamples(samples []dataset.RegSample, features *dataset.FeatureSet) error {
	if err := f.cfg.validate(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	f.nFeatures_ = samples[0].Point.NumFeatures()

	n := len(samples)
	draws := n + f.cfg.extraSamples
	maxFeatures := f.cfg.featureSamples
	if maxFeatures <= 0 {
		maxFeatures = features.Len() / 3
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	trees := make([]*tree.DecisionTreeRegressor, f.cfg.forestSize)
	impSum := make([]float64, f.nFeatures_)
	var impMu sync.Mutex

	var oobSum, oobCount []float64
	var rowLocks []sync.Mutex
	if f.cfg.computeOOB {
		oobSum = make([]float64, n)
		oobCount = make([]float64, n)
		rowLocks = make([]sync.Mutex, n)
	}

	var errMu sync.Mutex
	var firstErr error

	parallel.Parallelize(f.cfg.forestSize, func(start, end int) {
		for i := start; i < end; i++ {
			seed := treeSeed(f.cfg.seed, i)
			rng := rand.New(rand.NewSource(seed))

			inBag := make([]bool, n)
			boot := make([]dataset.RegSample, draws)
			for d := range boot {
				idx := rng.Intn(n)
				boot[d] = samples[idx]
				inBag[idx] = true
			}

			opts := append([]tree.Option{}, f.cfg.treeOpts...)
			opts = append(opts,
				tree.WithMaxFeatures(maxFeatures),
				tree.WithSeed(seed),
				tree.WithWorkers(1),
			)
			reg := tree.NewDecisionTreeRegressor(opts...)
			if err := reg.FitSamples(boot, features.Clone()); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			trees[i] = reg

			impMu.Lock()
			floats.Add(impSum, reg.GetFeatureImportances())
			impMu.Unlock()

			if !f.cfg.computeOOB {
				continue
			}
			for idx, in := range inBag {
				if in {
					continue
				}
				v, err := reg.PredictPoint(samples[idx].Point)
				if err != nil {
					continue
				}
				rowLocks[idx].Lock()
				oobSum[idx] += v
				oobCount[idx]++
				rowLocks[idx].Unlock()
			}
		}
	})
	if firstErr != nil {
		return errors.NewTrainingError("RandomForestRegressor", "bootstrap", firstErr)
	}

	f.trees = trees
	f.importances_ = impSum
	normalize(f.importances_)

	if f.cfg.computeOOB {
		sqErr, totalWeight := 0.0, 0.0
		for idx := range oobSum {
			if oobCount[idx] == 0 {
				continue
			}
			w := samples[idx].Point.Weight()
			d := oobSum[idx]/oobCount[idx] - samples[idx].Target
			sqErr += w * d * d
			totalWeight += w
		}
		if totalWeight > 0 {
			f.oobError_ = sqErr / totalWeight
		}
	}

	f.state.SetDimensions(f.nFeatures_, n)
	f.state.SetFitted()
	f.logger.Info("Training completed",
		log.OperationKey, "fit",
		log.TreesKey, f.cfg.forestSize,
		log.SamplesKey, n,
		log.FeaturesKey, f.nFeatures_,
		log.OOBErrorKey, f.oobError_,
	)
	return nil
}

// Predict returns the mean prediction over all trees for each row of X.
func (f *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", f.nFeatures_, cols, 1)
	}

	points := dataset.PointsFromMatrix(X)
	out := mat.NewDense(rows, 1, nil)
	parallel.Parallelize(rows, func(start, end int) {
		for i := start; i < end; i++ {
			sum := 0.0
			for _, t := range f.trees {
				v, err := t.PredictPoint(points[i])
				if err != nil {
					continue
				}
				sum += v
			}
			out.Set(i, 0, sum/float64(len(f.trees)))
		}
	})
	return out, nil
}

// PredictPoint returns the mean prediction over all trees for one point.
func (f *RandomForestRegressor) PredictPoint(p *dataset.Point) (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("RandomForestRegressor", "PredictPoint")
	}
	sum := 0.0
	for _, t := range f.trees {
		v, err := t.PredictPoint(p)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(f.trees)), nil
}

// Score returns the coefficient of determination R^2 on X against y.
func (f *RandomForestRegressor) Score(X, y mat.Matrix) float64 {
	pred, err := f.Predict(X)
	if err != nil {
		return 0
	}
	r2, err := metrics.R2Score(y, pred)
	if err != nil {
		return 0
	}
	return r2
}

// OOBError returns the weighted out-of-bag mean squared error measured
// during fitting. It fails unless the forest was fitted with WithOOB(true).
func (f *RandomForestRegressor) OOBError() (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("RandomForestRegressor", "OOBError")
	}
	if !f.cfg.computeOOB {
		return 0, errors.NewValueError("RandomForestRegressor.OOBError", "fit with WithOOB(true) to track out-of-bag error")
	}
	return f.oobError_, nil
}

// Trees returns the fitted base trees.
func (f *RandomForestRegressor) Trees() []*tree.DecisionTreeRegressor {
	return f.trees
}

// IsFitted reports whether the forest has been trained.
func (f *RandomForestRegressor) IsFitted() bool { return f.state.IsFitted() }

// GetFeatureImportances returns the normalized mean decrease in variance,
// averaged across trees.
func (f *RandomForestRegressor) GetFeatureImportances() []float64 {
	out := make([]float64, len(f.importances_))
	copy(out, f.importances_)
	return out
}

// GetParams returns the hyperparameters of the forest.
func (f *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"forest_size":     f.cfg.forestSize,
		"extra_samples":   f.cfg.extraSamples,
		"feature_samples": f.cfg.featureSamples,
		"compute_oob":     f.cfg.computeOOB,
		"seed":            f.cfg.seed,
	}
}
