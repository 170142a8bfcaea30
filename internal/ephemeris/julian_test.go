package ephemeris

import (
	"math"
	"testing"
	"time"
)

// TestJulianDate verifies the Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Meeus "Astronomical Algorithms" Example 7.a: 1957 Oct 4.81
			name:     "Sputnik launch",
			time:     time.Date(1957, 10, 4, 19, 26, 24, 0, time.UTC),
			expected: 2436116.31,
		},
		{
			name:     "2026 midnight",
			time:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2461041.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			diff := math.Abs(got - tt.expected)
			if diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestDaysSinceJ2000 checks the sign and scale of the epoch offset.
func TestDaysSinceJ2000(t *testing.T) {
	if d := DaysSinceJ2000(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)); d != 0 {
		t.Errorf("epoch offset at J2000.0 = %v, want 0", d)
	}
	if d := DaysSinceJ2000(time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC)); math.Abs(d-1) > 1e-9 {
		t.Errorf("one day after epoch = %v, want 1", d)
	}
	if d := DaysSinceJ2000(time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC)); math.Abs(d+1) > 1e-9 {
		t.Errorf("one day before epoch = %v, want -1", d)
	}
}
