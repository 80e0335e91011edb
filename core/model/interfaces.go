// Package model provides additional interfaces and types for machine learning models.
// This file complements the base interfaces in estimator.go
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy (classification) or the coefficient
	// of determination R^2 (regression) of the prediction.
	Score(X mat.Matrix, y mat.Matrix) float64
}

// Regressor combines interfaces for regression models.
type Regressor interface {
	Estimator
	Scorer
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator
	Scorer

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// NClasses returns the number of classes seen during fitting.
	NClasses() int
}

// FeatureImportancer is the interface for tree-based models that expose a
// per-feature importance estimate summing to 1.
type FeatureImportancer interface {
	// GetFeatureImportances returns normalized importance scores, one per
	// feature seen during fitting.
	GetFeatureImportances() []float64
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
