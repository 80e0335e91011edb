// Package grove provides decision tree and tree-ensemble learning for Go,
// designed for backend services and real-time inference applications.
//
// grove offers a scikit-learn-like estimator API (Fit, Predict, Score) built
// on gonum matrices, covering single decision trees, extremely randomized
// trees, and forest ensembles for both classification and regression.
//
// # Features
//
// - Parallel training: subtrees and ensemble members train concurrently
// - Mixed feature types: numeric and categorical splits in the same tree
// - Pruning: reduced-error and error-based post-pruning
// - Feature importances: mean decrease in impurity and split-use counts
// - Deterministic: identical seeds produce identical models
//
// # Installation
//
// Install grove using go get:
//
//	go get github.com/groveml/grove
//
// # Quick Start
//
// Here's a simple example of training a random forest classifier:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/groveml/grove/ensemble"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    // Create training data
//	    X := mat.NewDense(6, 2, []float64{
//	        0.1, 0.2,
//	        0.2, 0.1,
//	        0.3, 0.3,
//	        2.1, 2.0,
//	        2.0, 2.2,
//	        2.3, 2.1,
//	    })
//	    y := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})
//
//	    // Create and train model
//	    clf := ensemble.NewRandomForestClassifier(
//	        ensemble.WithForestSize(50),
//	        ensemble.WithSeed(42),
//	    )
//	    if err := clf.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Make predictions
//	    XTest := mat.NewDense(2, 2, []float64{0.2, 0.2, 2.1, 2.1})
//	    predictions, err := clf.Predict(XTest)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    fmt.Println("Predictions:", predictions)
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - tree: decision trees, extremely randomized trees, stumps, pruning
//   - ensemble: RandomForest and ERTrees classifiers and regressors
//   - dataset: weighted sample representations for tree training
//   - metrics: evaluation metrics (accuracy, MSE, RMSE, MAE, R²)
//   - stats/kde: kernel density estimation used by PDF-based splitting
//   - core/model: estimator state management
//   - core/parallel: parallel processing utilities
//
// # Performance
//
// grove parallelizes work at two levels: sibling subtrees train on a shared
// bounded worker pool, and ensembles train their member trees concurrently.
// Prediction over large inputs is chunked across CPU cores. Training results
// do not depend on goroutine scheduling.
//
// # License
//
// grove is released under the MIT License.
package grove
