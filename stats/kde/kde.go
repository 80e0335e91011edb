// Package kde provides a weighted Gaussian kernel density estimator.
//
// Tree split search consumes densities as black boxes through the Density
// interface; this package supplies the one concrete implementation needed by
// the PDF-intersection numeric split strategy.
package kde

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/groveml/grove/pkg/errors"
)

// Density is a one-dimensional probability density.
type Density interface {
	// PDF returns the density at x.
	PDF(x float64) float64
	// InvCDF returns the x with CDF(x) = p, for p in (0, 1).
	InvCDF(p float64) float64
}

// KDE is a weighted Gaussian kernel density estimate over a sample of scalar
// values. The bandwidth follows Silverman's rule of thumb on the weighted
// standard deviation.
type KDE struct {
	xs        []float64 // ascending
	ws        []float64 // aligned with xs
	total     float64
	bandwidth float64
	min, max  float64
}

// minBandwidth keeps degenerate samples (all values equal) from producing a
// zero-width kernel.
const minBandwidth = 1e-9

// New fits a KDE to values with the given weights. Weights may be nil for a
// uniform estimate. At least one value with positive weight is required.
func New(values, weights []float64) (*KDE, error) {
	if len(values) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if weights != nil && len(weights) != len(values) {
		return nil, errors.NewDimensionError("kde.New", len(values), len(weights), 0)
	}

	type vw struct{ x, w float64 }
	pairs := make([]vw, len(values))
	total := 0.0
	for i, x := range values {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w < 0 {
			return nil, errors.NewValidationError("weights", "must be non-negative", w)
		}
		pairs[i] = vw{x: x, w: w}
		total += w
	}
	if total <= 0 {
		return nil, errors.NewValueError("kde.New", "total weight must be positive")
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].x < pairs[j].x })

	k := &KDE{
		xs:    make([]float64, len(pairs)),
		ws:    make([]float64, len(pairs)),
		total: total,
	}
	for i, p := range pairs {
		k.xs[i] = p.x
		k.ws[i] = p.w
	}
	k.min = k.xs[0]
	k.max = k.xs[len(k.xs)-1]
	k.bandwidth = silverman(k.xs, k.ws, total)
	return k, nil
}

// silverman computes the rule-of-thumb bandwidth 1.06*sigma*n^(-1/5) using
// the weighted standard deviation.
func silverman(xs, ws []float64, total float64) float64 {
	mean := 0.0
	for i, x := range xs {
		mean += ws[i] * x
	}
	mean /= total

	variance := 0.0
	for i, x := range xs {
		d := x - mean
		variance += ws[i] * d * d
	}
	variance /= total

	h := 1.06 * math.Sqrt(variance) * math.Pow(float64(len(xs)), -0.2)
	if h < minBandwidth {
		h = minBandwidth
	}
	return h
}

// PDF returns the estimated density at x.
func (k *KDE) PDF(x float64) float64 {
	sum := 0.0
	for i, xi := range k.xs {
		kernel := distuv.Normal{Mu: xi, Sigma: k.bandwidth}
		sum += k.ws[i] * kernel.Prob(x)
	}
	return sum / k.total
}

// CDF returns the estimated cumulative probability at x.
func (k *KDE) CDF(x float64) float64 {
	sum := 0.0
	for i, xi := range k.xs {
		kernel := distuv.Normal{Mu: xi, Sigma: k.bandwidth}
		sum += k.ws[i] * kernel.CDF(x)
	}
	return sum / k.total
}

// InvCDF returns the x with CDF(x) = p via bisection over the support.
// p outside (0,1) is clamped to the support boundary.
func (k *KDE) InvCDF(p float64) float64 {
	lo := k.min - 4*k.bandwidth
	hi := k.max + 4*k.bandwidth
	if p <= 0 {
		return lo
	}
	if p >= 1 {
		return hi
	}

	for i := 0; i < 64 && hi-lo > 1e-12*(1+math.Abs(lo)); i++ {
		mid := lo + (hi-lo)/2
		if k.CDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}

// Min returns the smallest observed value.
func (k *KDE) Min() float64 { return k.min }

// Max returns the largest observed value.
func (k *KDE) Max() float64 { return k.max }

// Bandwidth returns the kernel bandwidth in use.
func (k *KDE) Bandwidth() float64 { return k.bandwidth }
