package ephemeris

import "math"

// obliquity is the mean obliquity of the ecliptic in degrees. Treated as
// constant; the secular drift (~47 arcsec/century) is below the accuracy
// of the solar model.
const obliquity = 23.4393

// SkyCoordinates is an equatorial position of the sun.
type SkyCoordinates struct {
	RightAscension float64 // hours, [0, 24)
	Declination    float64 // degrees, [-90, 90]
}

// SunPosition returns the sun's apparent equatorial coordinates for a given
// day offset from J2000.0, using the low-precision model from the
// Astronomical Almanac (good to about 0.01 degrees between 1950 and 2050):
// mean longitude and mean anomaly linear in the day offset, ecliptic
// longitude via a two-term equation-of-center correction, then the standard
// spherical-to-equatorial transform. Deterministic, no state.
func SunPosition(dayOffset float64) SkyCoordinates {
	// Mean longitude and mean anomaly, degrees.
	L := normalizeDeg(280.461 + 0.9856474*dayOffset)
	g := normalizeDeg(357.528+0.9856003*dayOffset) * deg2rad

	// Ecliptic longitude with equation-of-center correction, radians.
	lambda := (L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * deg2rad

	eps := obliquity * deg2rad

	ra := math.Atan2(math.Cos(eps)*math.Sin(lambda), math.Cos(lambda))
	if ra < 0 {
		ra += 2 * math.Pi
	}
	dec := math.Asin(math.Sin(eps) * math.Sin(lambda))

	return SkyCoordinates{
		RightAscension: ra * 12 / math.Pi, // radians to hours
		Declination:    dec / deg2rad,
	}
}

// normalizeDeg wraps an angle into [0, 360).
func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
