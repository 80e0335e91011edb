package ensemble

import (
	"math"
	"math/rand"
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

// ERTreesClassifier is a bagged ensemble of extremely randomized trees.
// Each tree trains on a bootstrap resample of the data; on top of that, the
// trees randomize split selection itself. With the default selection count
// of sqrt(features) each node compares a handful of random splits instead
// of searching exhaustively, which makes training fast on wide data.
type ERTreesClassifier struct {
	state *model.StateManager
	cfg   forestConfig

	logger log.Logger

	trees        []*tree.ExtraTreeClassifier
	classes_     []int
	nClasses_    int
	nFeatures_   int
	oobError_    float64
	importances_ []float64
}

// NewERTreesClassifier creates an ensemble of 100 extremely randomized
// trees.
func NewERTreesClassifier(opts ...ForestOption) *ERTreesClassifier {
	f := &ERTreesClassifier{
		state:     model.NewStateManager(),
		cfg:       defaultForestConfig(),
		logger:    log.GetLoggerWithName("ensemble.ertrees_classifier"),
		oobError_: math.NaN(),
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit trains the ensemble on X (samples by features) and integer labels y
// (samples by 1).
func (f *ERTreesClassifier) Fit(X, y mat.Matrix) error {
	xr, _ := X.Dims()
	yr, yc := y.Dims()
	if xr != yr || yc != 1 {
		return errors.NewDimensionError("ERTreesClassifier.Fit", xr, yr, 0)
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
	return f.FitSamples(samples, len(classes))
}

// FitSamples trains the ensemble on weighted, possibly categorical samples.
func (f *ERTreesClassifier) FitSamples(samples []dataset.ClassSample, numClasses int) error {
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
	selection := f.cfg.selectionCount
	if selection <= 0 {
		selection = int(math.Sqrt(float64(f.nFeatures_)))
		if selection < 1 {
			selection = 1
		}
	}

	trees := make([]*tree.ExtraTreeClassifier, f.cfg.forestSize)
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
				tree.WithStopSize(f.cfg.stopSize),
				tree.WithSelectionCount(selection),
				tree.WithSeed(seed),
			)
			clf := tree.NewExtraTreeClassifier(opts...)
			if err := clf.FitSamples(boot, numClasses); err != nil {
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
		return errors.NewTrainingError("ERTreesClassifier", "bootstrap", firstErr)
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

// OOBError returns the weighted out-of-bag misclassification rate measured
// during fitting. It fails unless the ensemble was fitted with WithOOB(true).
func (f *ERTreesClassifier) OOBError() (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("ERTreesClassifier", "OOBError")
	}
	if !f.cfg.computeOOB {
		return 0, errors.NewValueError("ERTreesClassifier.OOBError", "fit with WithOOB(true) to track out-of-bag error")
	}
	return f.oobError_, nil
}

// Predict returns the majority-vote class label for each row of X.
func (f *ERTreesClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
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
// over every tree in the ensemble.
func (f *ERTreesClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("ERTreesClassifier", "PredictProba")
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("ERTreesClassifier.PredictProba", f.nFeatures_, cols, 1)
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
func (f *ERTreesClassifier) PredictPoint(p *dataset.Point) ([]float64, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("ERTreesClassifier", "PredictPoint")
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
func (f *ERTreesClassifier) Score(X, y mat.Matrix) float64 {
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

// Trees returns the fitted base trees.
func (f *ERTreesClassifier) Trees() []*tree.ExtraTreeClassifier { return f.trees }

// Classes returns the distinct labels seen during fitting, in sorted order.
func (f *ERTreesClassifier) Classes() []int {
	out := make([]int, len(f.classes_))
	copy(out, f.classes_)
	return out
}

// NClasses returns the number of target classes.
func (f *ERTreesClassifier) NClasses() int { return f.nClasses_ }

// IsFitted reports whether the ensemble has been trained.
func (f *ERTreesClassifier) IsFitted() bool { return f.state.IsFitted() }

// GetFeatureImportances returns the normalized mean decrease in impurity,
// averaged across trees.
func (f *ERTreesClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(f.importances_))
	copy(out, f.importances_)
	return out
}

// GetParams returns the hyperparameters of the ensemble.
func (f *ERTreesClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"forest_size":     f.cfg.forestSize,
		"stop_size":       f.cfg.stopSize,
		"selection_count": f.cfg.selectionCount,
		"seed":            f.cfg.seed,
	}
}

// ERTreesRegressor is the regression counterpart of ERTreesClassifier.
type ERTreesRegressor struct {
	state *model.StateManager
	cfg   forestConfig

	logger log.Logger

	trees        []*tree.ExtraTreeRegressor
	nFeatures_   int
	oobError_    float64
	importances_ []float64
}

// NewERTreesRegressor creates an ensemble of 100 extremely randomized
// regression trees.
func NewERTreesRegressor(opts ...ForestOption) *ERTreesRegressor {
	f := &ERTreesRegressor{
		state:     model.NewStateManager(),
		cfg:       defaultForestConfig(),
		logger:    log.GetLoggerWithName("ensemble.ertrees_regressor"),
		oobError_: math.NaN(),
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit trains the ensemble on X (samples by features) and real targets y
// (samples by 1).
func (f *ERTreesRegressor) Fit(X, y mat.Matrix) error {
	samples, err := dataset.RegressionFromMatrix(X, y)
	if err != nil {
		return err
	}
	return f.FitSamples(samples)
}

// FitSamples trains the ensemble on weighted, possibly categorical samples.
func (f *ERTreesRegressor) FitSamples(samples []dataset.RegSample) error {
	if err := f.cfg.validate(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.WithStack(errors.ErrEmptyData)
	}
	f.nFeatures_ = samples[0].Point.NumFeatures()

	n := len(samples)
	draws := n + f.cfg.extraSamples
	selection := f.cfg.selectionCount
	if selection <= 0 {
		selection = f.nFeatures_ / 3
		if selection < 1 {
			selection = 1
		}
	}

	trees := make([]*tree.ExtraTreeRegressor, f.cfg.forestSize)
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
				tree.WithStopSize(f.cfg.stopSize),
				tree.WithSelectionCount(selection),
				tree.WithSeed(seed),
			)
			reg := tree.NewExtraTreeRegressor(opts...)
			if err := reg.FitSamples(boot); err != nil {
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
		return errors.NewTrainingError("ERTreesRegressor", "bootstrap", firstErr)
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

// OOBError returns the weighted out-of-bag mean squared error measured
// during fitting. It fails unless the ensemble was fitted with WithOOB(true).
func (f *ERTreesRegressor) OOBError() (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("ERTreesRegressor", "OOBError")
	}
	if !f.cfg.computeOOB {
		return 0, errors.NewValueError("ERTreesRegressor.OOBError", "fit with WithOOB(true) to track out-of-bag error")
	}
	return f.oobError_, nil
}

// Predict returns the mean prediction over all trees for each row of X.
func (f *ERTreesRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !f.state.IsFitted() {
		return nil, errors.NewNotFittedError("ERTreesRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("ERTreesRegressor.Predict", f.nFeatures_, cols, 1)
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
func (f *ERTreesRegressor) PredictPoint(p *dataset.Point) (float64, error) {
	if !f.state.IsFitted() {
		return 0, errors.NewNotFittedError("ERTreesRegressor", "PredictPoint")
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
func (f *ERTreesRegressor) Score(X, y mat.Matrix) float64 {
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

// Trees returns the fitted base trees.
func (f *ERTreesRegressor) Trees() []*tree.ExtraTreeRegressor { return f.trees }

// IsFitted reports whether the ensemble has been trained.
func (f *ERTreesRegressor) IsFitted() bool { return f.state.IsFitted() }

// GetFeatureImportances returns the normalized mean decrease in variance,
// averaged across trees.
func (f *ERTreesRegressor) GetFeatureImportances() []float64 {
	out := make([]float64, len(f.importances_))
	copy(out, f.importances_)
	return out
}

// GetParams returns the hyperparameters of the ensemble.
func (f *ERTreesRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"forest_size":     f.cfg.forestSize,
		"stop_size":       f.cfg.stopSize,
		"selection_count": f.cfg.selectionCount,
		"seed":            f.cfg.seed,
	}
}
