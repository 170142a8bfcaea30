// Package ephemeris computes solar rise and set events for an observer.
//
// The core entry point is Calculate, which scans a window of hourly solar
// altitude samples centered on a query time, detects horizon crossings by
// altitude sign changes, and refines each crossing to sub-hour precision
// with a 3-point quadratic interpolation. The computation is pure and
// stateless: concurrent calls are safe without locking.
package ephemeris

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00 UTC).
const j2000 = 2451545.0

const deg2rad = math.Pi / 180.0

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Adjust year/month for Jan/Feb (treat as months 13/14 of previous year).
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// DaysSinceJ2000 returns the fractional number of days between t and the
// J2000.0 epoch. Negative before the epoch. Precision degrades gracefully
// far from the present era; the value is not bounds-checked.
func DaysSinceJ2000(t time.Time) float64 {
	return JulianDate(t) - j2000
}
