// Package dataset defines the weighted data points, training samples and
// feature-index sets that tree and ensemble training operate on.
//
// A Point pairs a numeric feature vector with categorical feature values and
// a non-negative weight. Points are immutable: tree code reads them, splits
// collections of them, but never mutates one.
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/groveml/grove/pkg/errors"
)

// CategoricalInfo describes one categorical attribute: its name and the named
// values it can take. The value count fixes the fan-out of a full categorical
// split on the attribute.
type CategoricalInfo struct {
	Name   string
	Values []string
}

// Cardinality returns the number of values the attribute can take.
func (c CategoricalInfo) Cardinality() int {
	return len(c.Values)
}

// Point is an immutable weighted observation with numeric and categorical
// attributes.
type Point struct {
	numeric     *mat.VecDense
	categorical []int
	catInfo     []CategoricalInfo
	weight      float64
}

// NewPoint creates a Point. The categorical slice holds the value index of
// each categorical attribute and must line up with catInfo. The weight must
// be non-negative.
func NewPoint(numeric *mat.VecDense, categorical []int, catInfo []CategoricalInfo, weight float64) (*Point, error) {
	if weight < 0 {
		return nil, errors.NewValidationError("weight", "must be non-negative", weight)
	}
	if len(categorical) != len(catInfo) {
		return nil, errors.NewDimensionError("NewPoint", len(catInfo), len(categorical), 1)
	}
	for i, v := range categorical {
		if v < 0 || v >= catInfo[i].Cardinality() {
			return nil, errors.NewValueError("NewPoint",
				"categorical value out of range for attribute "+catInfo[i].Name)
		}
	}
	return &Point{
		numeric:     numeric,
		categorical: categorical,
		catInfo:     catInfo,
		weight:      weight,
	}, nil
}

// NewNumericPoint creates a unit-weight Point with only numeric attributes.
func NewNumericPoint(values []float64) *Point {
	return &Point{
		numeric: mat.NewVecDense(len(values), values),
		weight:  1.0,
	}
}

// Numeric returns the numeric feature vector. Callers must not mutate it.
func (p *Point) Numeric() mat.Vector {
	return p.numeric
}

// NumericValue returns the i-th numeric attribute value.
func (p *Point) NumericValue(i int) float64 {
	return p.numeric.AtVec(i)
}

// NumNumeric returns the number of numeric attributes.
func (p *Point) NumNumeric() int {
	if p.numeric == nil {
		return 0
	}
	return p.numeric.Len()
}

// Categorical returns the value index of the i-th categorical attribute.
func (p *Point) Categorical(i int) int {
	return p.categorical[i]
}

// NumCategorical returns the number of categorical attributes.
func (p *Point) NumCategorical() int {
	return len(p.categorical)
}

// CatInfo returns the metadata of the i-th categorical attribute.
func (p *Point) CatInfo(i int) CategoricalInfo {
	return p.catInfo[i]
}

// Weight returns the point's non-negative weight.
func (p *Point) Weight() float64 {
	return p.weight
}

// NumFeatures returns the combined attribute count. Feature indices
// [0, NumNumeric) address numeric attributes; the remainder address
// categorical attributes in order.
func (p *Point) NumFeatures() int {
	return p.NumNumeric() + p.NumCategorical()
}
