package tree

import (
	"math"
	"testing"
)

func TestParseImpurity(t *testing.T) {
	cases := map[string]ImpurityMeasure{
		"gini":                 Gini,
		"entropy":              InformationGain,
		"entropy_ratio":        InformationGainRatio,
		"classification_error": ClassificationError,
	}
	for name, want := range cases {
		got, err := ParseImpurity(name)
		if err != nil {
			t.Fatalf("ParseImpurity(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseImpurity(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseImpurity("bogus"); err == nil {
		t.Error("expected error for unknown criterion")
	}
}

func TestImpurityScorePureNode(t *testing.T) {
	for _, m := range []ImpurityMeasure{InformationGain, InformationGainRatio, Gini, ClassificationError} {
		s, err := NewImpurityScore(3, m)
		if err != nil {
			t.Fatalf("NewImpurityScore failed: %v", err)
		}
		for i := 0; i < 10; i++ {
			s.AddPoint(1.0, 1)
		}
		if got := s.Score(); got != 0 {
			t.Errorf("measure %v: pure node score = %f, want 0", m, got)
		}
	}
}

func TestImpurityScoreEntropyUniform(t *testing.T) {
	s, err := NewImpurityScore(2, InformationGain)
	if err != nil {
		t.Fatalf("NewImpurityScore failed: %v", err)
	}
	s.AddPoint(5, 0)
	s.AddPoint(5, 1)
	if got := s.Score(); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("uniform binary entropy = %f, want 1", got)
	}
}

func TestAddRemoveRestoresScore(t *testing.T) {
	s, err := NewImpurityScore(3, Gini)
	if err != nil {
		t.Fatalf("NewImpurityScore failed: %v", err)
	}
	s.AddPoint(2.5, 0)
	s.AddPoint(1.0, 1)
	s.AddPoint(0.5, 2)
	before := s.Score()
	beforeW := s.SumWeight()

	s.AddPoint(3.25, 1)
	s.RemovePoint(3.25, 1)

	if math.Abs(s.Score()-before) > 1e-12 {
		t.Errorf("score after add/remove = %f, want %f", s.Score(), before)
	}
	if math.Abs(s.SumWeight()-beforeW) > 1e-12 {
		t.Errorf("weight after add/remove = %f, want %f", s.SumWeight(), beforeW)
	}
}

func TestGainCleanSplit(t *testing.T) {
	parent, _ := NewImpurityScore(2, Gini)
	left, _ := NewImpurityScore(2, Gini)
	right, _ := NewImpurityScore(2, Gini)
	for i := 0; i < 10; i++ {
		parent.AddPoint(1, 0)
		parent.AddPoint(1, 1)
		left.AddPoint(1, 0)
		right.AddPoint(1, 1)
	}

	gain := parent.Gain(left, right)
	if math.Abs(gain-0.5) > 1e-12 {
		t.Errorf("clean split Gini gain = %f, want 0.5", gain)
	}
}

func TestGainRatioSplitInfoFloor(t *testing.T) {
	// One child carries all the weight, so the raw split information is 0
	// and the floor of 1 must keep the ratio finite.
	parent, _ := NewImpurityScore(2, InformationGainRatio)
	full, _ := NewImpurityScore(2, InformationGainRatio)
	empty, _ := NewImpurityScore(2, InformationGainRatio)
	parent.AddPoint(4, 0)
	parent.AddPoint(4, 1)
	full.AddPoint(4, 0)
	full.AddPoint(4, 1)

	gain := parent.Gain(full, empty)
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		t.Fatalf("gain ratio not finite: %f", gain)
	}
	if math.Abs(gain) > 1e-12 {
		t.Errorf("no-op split gain = %f, want 0", gain)
	}
}

func TestGainRatioPenalizesFanOut(t *testing.T) {
	// A 4-way split and a 2-way split with the same children purity: the
	// ratio criterion must score the wider split lower.
	parent, _ := NewImpurityScore(4, InformationGainRatio)
	for c := 0; c < 4; c++ {
		parent.AddPoint(10, c)
	}

	wide := make([]*ImpurityScore, 4)
	for c := range wide {
		wide[c], _ = NewImpurityScore(4, InformationGainRatio)
		wide[c].AddPoint(10, c)
	}

	// Raw entropy reduction is 2 bits, split information is log2(4) = 2,
	// so the ratio must come out as 1.
	if gain := parent.Gain(wide...); math.Abs(gain-1.0) > 1e-12 {
		t.Errorf("4-way pure split gain ratio = %f, want 1", gain)
	}
}

func TestCloneIndependence(t *testing.T) {
	s, _ := NewImpurityScore(2, Gini)
	s.AddPoint(1, 0)
	c := s.Clone()
	c.AddPoint(9, 1)
	if s.SumWeight() != 1 {
		t.Errorf("clone mutation leaked into original: weight %f", s.SumWeight())
	}
	if c.SumWeight() != 10 {
		t.Errorf("clone weight = %f, want 10", c.SumWeight())
	}
}
