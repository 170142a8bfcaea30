package ephemeris

import "math"

// siderealRatio is the ratio of the sidereal to the mean solar rotation rate.
const siderealRatio = 1.0027379

// hourAngleRate is the change of local sidereal time per mean solar hour,
// in radians: 15 degrees per hour scaled by the sidereal/solar ratio.
const hourAngleRate = 15 * deg2rad * siderealRatio

// siderealRateDeg is the same rate expressed in degrees per day
// (24 h x 15 deg/h x siderealRatio).
const siderealRateDeg = 360.98564736629

// LocalSiderealTime returns the local mean sidereal time in degrees [0, 360)
// for the given day offset from J2000.0 and an observer longitude in degrees
// (east positive). Greenwich mean sidereal time is modeled as linear in the
// day offset; the higher-order polynomial terms are far below the accuracy
// of the solar position model.
func LocalSiderealTime(dayOffset, longitude float64) float64 {
	return normalizeDeg(280.46061837 + siderealRateDeg*dayOffset + longitude)
}

// altitudeSin returns the sine of the sun's local altitude for an observer
// with the given latitude sine/cosine, a declination in degrees, and an
// hour angle in radians.
func altitudeSin(sinLat, cosLat, declination, hourAngle float64) float64 {
	decRad := declination * deg2rad
	return sinLat*math.Sin(decRad) + cosLat*math.Cos(decRad)*math.Cos(hourAngle)
}

// azimuthDeg returns the sun's azimuth in degrees from north [0, 360) for an
// observer with the given latitude sine/cosine, a declination in degrees,
// and an hour angle in radians.
func azimuthDeg(sinLat, cosLat, declination, hourAngle float64) float64 {
	decRad := declination * deg2rad
	n := -math.Cos(decRad) * math.Sin(hourAngle)
	d := cosLat*math.Sin(decRad) - sinLat*math.Cos(decRad)*math.Cos(hourAngle)
	az := math.Atan2(n, d) / deg2rad
	if az < 0 {
		az += 360
	}
	return az
}
