package kde

import (
	"math"
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for empty values")
	}
	if _, err := New([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("expected error for mismatched weights")
	}
	if _, err := New([]float64{1, 2}, []float64{0, 0}); err == nil {
		t.Error("expected error for zero total weight")
	}
	if _, err := New([]float64{1, 2}, []float64{1, -1}); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestPDFIntegratesToOne(t *testing.T) {
	values := []float64{-1.2, 0.3, 0.5, 1.9, 2.2, 4.0}
	k, err := New(values, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Trapezoid integration over the support plus kernel tails.
	lo := k.Min() - 5*k.Bandwidth()
	hi := k.Max() + 5*k.Bandwidth()
	const steps = 2000
	dx := (hi - lo) / steps
	integral := 0.0
	for i := 0; i <= steps; i++ {
		w := 1.0
		if i == 0 || i == steps {
			w = 0.5
		}
		integral += w * k.PDF(lo+float64(i)*dx) * dx
	}
	if math.Abs(integral-1.0) > 1e-3 {
		t.Errorf("PDF integral = %f, want 1.0", integral)
	}
}

func TestCDFMonotone(t *testing.T) {
	k, err := New([]float64{0, 1, 2, 3, 10}, []float64{1, 2, 1, 1, 0.5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	prev := -1.0
	for x := -2.0; x <= 12.0; x += 0.25 {
		c := k.CDF(x)
		if c < prev {
			t.Fatalf("CDF not monotone at x=%f: %f < %f", x, c, prev)
		}
		if c < 0 || c > 1 {
			t.Fatalf("CDF out of range at x=%f: %f", x, c)
		}
		prev = c
	}
}

func TestInvCDFRoundTrip(t *testing.T) {
	k, err := New([]float64{1, 2, 3, 4, 5, 6, 7, 8}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		x := k.InvCDF(p)
		if got := k.CDF(x); math.Abs(got-p) > 1e-6 {
			t.Errorf("CDF(InvCDF(%f)) = %f", p, got)
		}
	}
}

func TestDegenerateSample(t *testing.T) {
	k, err := New([]float64{3, 3, 3}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if k.Bandwidth() <= 0 {
		t.Error("bandwidth must stay positive for constant samples")
	}
	if k.Min() != 3 || k.Max() != 3 {
		t.Errorf("Min/Max = %f/%f, want 3/3", k.Min(), k.Max())
	}
}
