package tree

import (
	"math"
	"strings"

	"github.com/groveml/grove/dataset"
	"github.com/groveml/grove/pkg/errors"
)

// ImpurityMeasure selects the class-impurity function used to score splits.
type ImpurityMeasure int

const (
	// InformationGain scores splits by entropy reduction.
	InformationGain ImpurityMeasure = iota
	// InformationGainRatio normalizes entropy reduction by the split
	// information, penalizing high-arity splits.
	InformationGainRatio
	// Gini scores splits by Gini impurity reduction.
	Gini
	// ClassificationError scores splits by majority-class error reduction.
	ClassificationError
)

func (m ImpurityMeasure) String() string {
	switch m {
	case InformationGain:
		return "entropy"
	case InformationGainRatio:
		return "entropy_ratio"
	case Gini:
		return "gini"
	case ClassificationError:
		return "classification_error"
	default:
		return "unknown"
	}
}

// ParseImpurity maps a criterion name to its measure. Recognized names are
// "entropy", "entropy_ratio", "gini" and "classification_error".
func ParseImpurity(name string) (ImpurityMeasure, error) {
	switch strings.ToLower(name) {
	case "entropy":
		return InformationGain, nil
	case "entropy_ratio", "gain_ratio":
		return InformationGainRatio, nil
	case "gini":
		return Gini, nil
	case "classification_error", "error":
		return ClassificationError, nil
	default:
		return 0, errors.NewValidationError("criterion", "unknown impurity measure", name)
	}
}

// ImpurityScore accumulates per-class weights and evaluates an impurity
// measure over them. Adding or removing a point is O(1), which lets split
// search slide points between a left and right accumulator instead of
// recounting partitions from scratch.
type ImpurityScore struct {
	measure   ImpurityMeasure
	counts    []float64
	sumWeight float64
}

// NewImpurityScore returns an empty accumulator for numClasses classes.
func NewImpurityScore(numClasses int, measure ImpurityMeasure) (*ImpurityScore, error) {
	if numClasses < 1 {
		return nil, errors.NewValidationError("numClasses", "must be at least 1", numClasses)
	}
	if measure < InformationGain || measure > ClassificationError {
		return nil, errors.NewValidationError("measure", "unknown impurity measure", int(measure))
	}
	return &ImpurityScore{
		measure: measure,
		counts:  make([]float64, numClasses),
	}, nil
}

// scoreFromSamples builds an accumulator already charged with the samples.
func scoreFromSamples(samples []dataset.ClassSample, numClasses int, measure ImpurityMeasure) (*ImpurityScore, error) {
	s, err := NewImpurityScore(numClasses, measure)
	if err != nil {
		return nil, err
	}
	for _, smp := range samples {
		s.AddPoint(smp.Point.Weight(), smp.Class)
	}
	return s, nil
}

// AddPoint charges weight to the given class.
func (s *ImpurityScore) AddPoint(weight float64, class int) {
	s.counts[class] += weight
	s.sumWeight += weight
}

// RemovePoint reverses a prior AddPoint with the same arguments.
func (s *ImpurityScore) RemovePoint(weight float64, class int) {
	s.counts[class] -= weight
	s.sumWeight -= weight
}

// SumWeight returns the total accumulated weight.
func (s *ImpurityScore) SumWeight() float64 {
	return s.sumWeight
}

// NumClasses returns the number of classes tracked.
func (s *ImpurityScore) NumClasses() int {
	return len(s.counts)
}

// Distribution returns the normalized class distribution. An empty
// accumulator yields a uniform distribution.
func (s *ImpurityScore) Distribution() []float64 {
	dist := make([]float64, len(s.counts))
	if s.sumWeight <= 0 {
		for i := range dist {
			dist[i] = 1.0 / float64(len(dist))
		}
		return dist
	}
	for i, c := range s.counts {
		dist[i] = c / s.sumWeight
	}
	return dist
}

// Score returns the impurity of the current distribution. An empty
// accumulator scores 0.
func (s *ImpurityScore) Score() float64 {
	if s.sumWeight <= 0 {
		return 0
	}
	switch s.measure {
	case InformationGain, InformationGainRatio:
		return entropy(s.counts, s.sumWeight)
	case Gini:
		gini := 1.0
		for _, c := range s.counts {
			p := c / s.sumWeight
			gini -= p * p
		}
		return gini
	case ClassificationError:
		max := 0.0
		for _, c := range s.counts {
			if c > max {
				max = c
			}
		}
		return 1.0 - max/s.sumWeight
	default:
		return 0
	}
}

// Gain returns the impurity reduction of splitting this accumulator into the
// given children. For InformationGainRatio the reduction is divided by the
// split information, floored at 1 so near-zero denominators cannot inflate
// the gain.
func (s *ImpurityScore) Gain(children ...*ImpurityScore) float64 {
	total := 0.0
	for _, c := range children {
		total += c.sumWeight
	}
	if total <= 0 {
		return 0
	}

	gain := s.Score()
	for _, c := range children {
		gain -= (c.sumWeight / total) * c.Score()
	}

	if s.measure == InformationGainRatio {
		splitInfo := 0.0
		for _, c := range children {
			p := c.sumWeight / total
			if p > 0 {
				splitInfo -= p * math.Log2(p)
			}
		}
		if splitInfo < 1 {
			splitInfo = 1
		}
		gain /= splitInfo
	}
	return gain
}

// Clone returns an independent copy of the accumulator.
func (s *ImpurityScore) Clone() *ImpurityScore {
	counts := make([]float64, len(s.counts))
	copy(counts, s.counts)
	return &ImpurityScore{measure: s.measure, counts: counts, sumWeight: s.sumWeight}
}

func entropy(counts []float64, total float64) float64 {
	h := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}
