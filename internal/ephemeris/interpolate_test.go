package ephemeris

import (
	"math"
	"testing"
)

// TestInterpolateReproducesSamples checks the quadratic passes through its
// three defining samples at p = 0, 1/2, 1.
func TestInterpolateReproducesSamples(t *testing.T) {
	cases := [][3]float64{
		{-0.3, 0.1, 0.4},
		{1, 1, 1},
		{2, -1, 3},
		{-0.001, 0, 0.001},
	}
	for _, c := range cases {
		for i, p := range []float64{0, 0.5, 1} {
			got := interpolate(c[0], c[1], c[2], p)
			if math.Abs(got-c[i]) > 1e-12 {
				t.Errorf("interpolate(%v, p=%v) = %v, want %v", c, p, got, c[i])
			}
		}
	}
}

// TestCrossingFraction verifies the root solver against the evaluated
// quadratic and that every reported fraction lies in [0, 1).
func TestCrossingFraction(t *testing.T) {
	tests := []struct {
		name       string
		f0, f1, f2 float64
		wantOK     bool
	}{
		{"rising crossing", -0.5, -0.1, 0.4, true},
		{"setting crossing", 0.4, 0.05, -0.3, true},
		{"crossing near start", -0.01, 0.2, 0.41, true},
		{"crossing near end", -0.41, -0.2, 0.01, true},
		// Sample triples whose fitted curvature is float-roundoff tiny but
		// not exactly zero; the solver must not let the quadratic formula
		// cancel against it.
		{"shallow rising ramp", -0.3, 0.2, 0.7, true},
		{"shallow setting ramp", 0.35, 0.05, -0.25, true},
		{"no crossing above", 0.2, 0.3, 0.25, false},
		{"no crossing below", -0.2, -0.3, -0.25, false},
		{"collinear crossing", -0.5, 0, 0.5, true},
		{"degenerate flat", 0.1, 0.1, 0.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := crossingFraction(tt.f0, tt.f1, tt.f2)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (p=%v)", ok, tt.wantOK, p)
			}
			if !ok {
				return
			}
			if p < 0 || p >= 1 {
				t.Fatalf("fraction %v outside [0,1)", p)
			}
			// The root must actually zero the interpolated value.
			if v := interpolate(tt.f0, tt.f1, tt.f2, p); math.Abs(v) > 1e-9 {
				t.Errorf("interpolate at root = %v, want 0", v)
			}
		})
	}
}

// TestCrossingFractionMonotonicHours models a realistic altitude profile:
// for an hour containing exactly one sign change, the fraction is strictly
// inside the interval and ordered with the crossing position.
func TestCrossingFractionMonotonicHours(t *testing.T) {
	// Shift a near-linear altitude ramp so the zero moves across the hour.
	for shift := 0.05; shift < 0.95; shift += 0.1 {
		f := func(p float64) float64 { return p - shift + 0.02*math.Sin(3*p) }
		p, ok := crossingFraction(f(0), f(0.5), f(1))
		if !ok {
			t.Fatalf("shift %.2f: no crossing found", shift)
		}
		if p <= 0 || p >= 1 {
			t.Fatalf("shift %.2f: fraction %v not strictly inside (0,1)", shift, p)
		}
		if math.Abs(p-shift) > 0.05 {
			t.Errorf("shift %.2f: fraction %v too far from expected crossing", shift, p)
		}
	}
}
