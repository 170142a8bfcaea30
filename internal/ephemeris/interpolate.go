package ephemeris

import "math"

// quadCoeffs returns the coefficients a, b of the parabola
//
//	f(p) = f0 + b*p + a*p^2
//
// through the samples f0, f1, f2 taken at p = 0, 1/2, 1.
func quadCoeffs(f0, f1, f2 float64) (a, b float64) {
	a = 2*f2 - 4*f1 + 2*f0
	b = 4*f1 - 3*f0 - f2
	return a, b
}

// interpolate evaluates the 3-point quadratic through f0, f1, f2 at
// fraction p. The same coefficient scheme backs crossingFraction, so the
// root location and any value interpolated at that root are consistent.
func interpolate(f0, f1, f2, p float64) float64 {
	a, b := quadCoeffs(f0, f1, f2)
	return f0 + p*(b+p*a)
}

// crossingFraction solves the quadratic through f0, f1, f2 for its zero
// within the sample interval and reports the fraction p in [0, 1).
// Returns ok=false when the parabola has no real root in range.
func crossingFraction(f0, f1, f2 float64) (p float64, ok bool) {
	a, b := quadCoeffs(f0, f1, f2)

	// A near-linear parabola makes -b + sqrt(b^2 - 4*a*f0) cancel to noise;
	// an hourly altitude ramp sits in this regime routinely. Solve the
	// linear equation whenever the quadratic term is negligible against the
	// linear one.
	if math.Abs(a) <= 1e-12*math.Abs(b) {
		if b == 0 {
			return 0, false
		}
		p = -f0 / b
		return p, p >= 0 && p < 1
	}

	disc := b*b - 4*a*f0
	if disc < 0 {
		return 0, false
	}

	// Citardauq form: q carries the sign of b, so neither root subtracts
	// nearly equal quantities.
	q := -(b + math.Copysign(math.Sqrt(disc), b)) / 2
	p = q / a
	if p < 0 || p >= 1 {
		if q == 0 {
			return 0, false
		}
		p = f0 / q
	}
	if p < 0 || p >= 1 {
		return 0, false
	}
	return p, true
}
