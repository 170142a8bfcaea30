package ephemeris

import (
	"math"
	"time"
)

// HorizontalCoordinates is the sun's position in an observer's local frame.
type HorizontalCoordinates struct {
	Altitude float64 `json:"altitude"` // degrees above (+) or below (-) the horizon
	Azimuth  float64 `json:"azimuth"`  // degrees from north, [0, 360)
}

// Position returns the sun's equatorial and local horizontal coordinates at
// time t for an observer at the given latitude and longitude (decimal
// degrees). Same solar model and sidereal time as the event search, so a
// reported altitude of horizonAltitude coincides with a rise/set instant.
func Position(latitude, longitude float64, t time.Time) (SkyCoordinates, HorizontalCoordinates) {
	dayOffset := DaysSinceJ2000(t)
	sc := SunPosition(dayOffset)

	lst := LocalSiderealTime(dayOffset, longitude) * deg2rad
	ha := lst - sc.RightAscension*15*deg2rad

	sinLat := math.Sin(latitude * deg2rad)
	cosLat := math.Cos(latitude * deg2rad)

	// Clamp against float rounding pushing the sine a hair outside [-1, 1].
	sinAlt := math.Max(-1, math.Min(1, altitudeSin(sinLat, cosLat, sc.Declination, ha)))
	alt := math.Asin(sinAlt) / deg2rad
	az := azimuthDeg(sinLat, cosLat, sc.Declination, ha)

	return sc, HorizontalCoordinates{Altitude: alt, Azimuth: az}
}

// AboveHorizon reports whether the sun's center is above the rise/set
// horizon (horizonAltitude) at time t for the given observer.
func AboveHorizon(latitude, longitude float64, t time.Time) bool {
	_, hc := Position(latitude, longitude, t)
	return hc.Altitude > horizonAltitude
}
