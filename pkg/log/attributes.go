// Package log defines standard attribute keys for machine learning operations.
//
// Using these keys consistently across packages enables filtering and
// aggregation of training logs. Keys follow a hierarchical naming convention
// ("model.name", "data.samples", "tree.depth").

package log

// Model and operation context.
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "DecisionTreeClassifier", "RandomForestRegressor"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "predict_proba", "prune"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the
	// operation. Examples: "tree.stump", "ensemble.random_forest"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	// Examples: "training", "inference", "pruning"
	PhaseKey = "ml.phase"

	// WarningKey carries a structured library warning, e.g. a degenerate
	// split notice raised during stump training.
	WarningKey = "ml.warning"
)

// Data shape and characteristics.
const (
	// SamplesKey indicates the number of samples in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of target classes for classification.
	ClassesKey = "data.classes"

	// WeightSumKey records the total sample weight of a training set.
	WeightSumKey = "data.weight_sum"
)

// Tree and ensemble statistics.
const (
	// DepthKey records the depth of a trained tree.
	DepthKey = "tree.depth"

	// LeavesKey records the number of (enabled) leaves of a trained tree.
	LeavesKey = "tree.leaves"

	// PrunedPathsKey records how many paths a pruning pass disabled.
	PrunedPathsKey = "tree.pruned_paths"

	// TreesKey records the number of trees in an ensemble.
	TreesKey = "forest.trees"

	// OOBErrorKey records the out-of-bag error estimate of an ensemble.
	OOBErrorKey = "forest.oob_error"
)

// Performance metrics.
const (
	// DurationMsKey records the execution time of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey records the number of parallel workers used.
	WorkersKey = "perf.workers"
)
