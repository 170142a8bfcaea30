package ephemeris

import (
	"fmt"
	"math"
	"time"
)

// DefaultWindow is the default event search window in hours. Events further
// than DefaultWindow/2 hours from the query time are not found. Larger
// windows extend polar-region coverage at the cost of interpolation error;
// useful values run from about 12 to 96 hours.
const DefaultWindow = 48

// horizonAltitude is the altitude of the sun's center at the moment its
// upper limb touches the horizon: the geometric horizon adjusted for the
// solar angular radius and mean atmospheric refraction. Degrees.
const horizonAltitude = -0.833

// Result holds the nearest rise and set events around a query time.
// RiseAzimuth and SetAzimuth are only meaningful when the corresponding
// HasRise/HasSet flag is true. All times are UTC.
type Result struct {
	QueryTime time.Time `json:"query_time"`

	RiseTime    time.Time `json:"rise_time,omitzero"`
	SetTime     time.Time `json:"set_time,omitzero"`
	RiseAzimuth float64   `json:"rise_azimuth"` // degrees from north, [0, 360)
	SetAzimuth  float64   `json:"set_azimuth"`  // degrees from north, [0, 360)

	HasRise bool `json:"has_rise"`
	HasSet  bool `json:"has_set"`
	Visible bool `json:"visible"` // sun above horizon at QueryTime
}

// Calculator runs the event search with a configurable window size.
// The zero value uses DefaultWindow.
type Calculator struct {
	window int
}

// NewCalculator returns a Calculator with the given search window in hours.
// The window must be a positive even integer.
func NewCalculator(window int) (Calculator, error) {
	if window <= 0 || window%2 != 0 {
		return Calculator{}, fmt.Errorf("ephemeris: window must be a positive even integer, got %d", window)
	}
	return Calculator{window: window}, nil
}

// Window returns the search window in hours.
func (c Calculator) Window() int {
	if c.window == 0 {
		return DefaultWindow
	}
	return c.window
}

// Calculate finds the sun rise and set events nearest to t for an observer
// at the given latitude and longitude (decimal degrees, east and north
// positive), using the default window. See Calculator.Calculate.
func Calculate(latitude, longitude float64, t time.Time) Result {
	return Calculator{}.Calculate(latitude, longitude, t)
}

// candidate is one detected horizon crossing within the search window.
type candidate struct {
	rise    bool
	at      time.Time
	azimuth float64
}

// Calculate scans a window of hourly solar altitude samples centered on t,
// refines each detected horizon crossing with quadratic interpolation, and
// returns the rise and set events closest to t along with the sun's
// visibility at t itself.
//
// Out-of-range latitude or longitude is not validated: such inputs yield
// numerically degenerate but non-crashing output, and input sanity is the
// caller's responsibility. The cost is fixed at Window()+1 solar position
// evaluations per call.
func (c Calculator) Calculate(latitude, longitude float64, t time.Time) Result {
	t = t.Truncate(time.Second).UTC()

	window := c.Window()
	half := window / 2
	dayOffset := DaysSinceJ2000(t)

	sinLat := math.Sin(latitude * deg2rad)
	cosLat := math.Cos(latitude * deg2rad)
	sinHorizon := math.Sin(horizonAltitude * deg2rad)

	// Local sidereal time at the query instant, radians. Hour offsets within
	// the window advance it by hourAngleRate per hour.
	lst0 := LocalSiderealTime(dayOffset, longitude) * deg2rad

	visible := false
	var cands []candidate

	// Sample at whole-hour offsets from t; the pair (k, k+1) brackets one
	// hour. Positions are evaluated once per sample boundary, rolling the
	// trailing sample forward, for exactly window+1 evaluations.
	prev := SunPosition(dayOffset - float64(half)/24)
	for k := -half; k < half; k++ {
		next := SunPosition(dayOffset + float64(k+1)/24)

		// Unwrap right ascension across the 24h seam so the hour angles of
		// this pair are continuous. Altitude only sees cos(ha), so the
		// pair-local convention cannot disagree with the previous pair.
		ra0 := prev.RightAscension
		ra1 := next.RightAscension
		if ra1 < ra0 {
			ra1 += 24
		}
		dec0 := prev.Declination
		dec1 := next.Declination
		prev = next

		ha0 := lst0 + float64(k)*hourAngleRate - ra0*15*deg2rad
		ha1 := lst0 + float64(k+1)*hourAngleRate - ra1*15*deg2rad
		haMid := (ha0 + ha1) / 2
		decMid := (dec0 + dec1) / 2

		v0 := altitudeSin(sinLat, cosLat, dec0, ha0) - sinHorizon
		v1 := altitudeSin(sinLat, cosLat, dec1, ha1) - sinHorizon

		// The sample at offset 0 is the query instant itself; visibility is
		// read directly from its altitude sign, independent of any event.
		if k == 0 {
			visible = v0 > 0
		}

		// Exact zero counts as below the horizon: a zero-or-negative to
		// positive transition is a rise in the hour where the comparison
		// first sees it, and symmetrically for sets.
		if (v0 > 0) == (v1 > 0) {
			continue
		}

		vMid := altitudeSin(sinLat, cosLat, decMid, haMid) - sinHorizon
		p, ok := crossingFraction(v0, vMid, v1)
		if !ok {
			continue
		}

		offsetSec := (float64(k) + p) * 3600
		haEvent := interpolate(ha0, haMid, ha1, p)

		cands = append(cands, candidate{
			rise:    v1 > 0,
			at:      t.Add(time.Duration(math.Round(offsetSec)) * time.Second),
			azimuth: azimuthDeg(sinLat, cosLat, decMid, haEvent),
		})
	}

	return reduceCandidates(t, visible, cands)
}

// reduceCandidates folds the detected crossings into a Result. For each
// event type it keeps the nearest candidate before and the nearest after
// the query time, then reports the nearer of the two sides.
func reduceCandidates(query time.Time, visible bool, cands []candidate) Result {
	var riseBefore, riseAfter, setBefore, setAfter *candidate

	closer := func(best, c *candidate) *candidate {
		if c == nil {
			return best
		}
		if best == nil {
			return c
		}
		if absDuration(c.at.Sub(query)) < absDuration(best.at.Sub(query)) {
			return c
		}
		return best
	}

	for i := range cands {
		c := &cands[i]
		after := c.at.After(query)
		switch {
		case c.rise && after:
			riseAfter = closer(riseAfter, c)
		case c.rise:
			riseBefore = closer(riseBefore, c)
		case after:
			setAfter = closer(setAfter, c)
		default:
			setBefore = closer(setBefore, c)
		}
	}

	res := Result{QueryTime: query, Visible: visible}

	if rise := closer(riseBefore, riseAfter); rise != nil {
		res.HasRise = true
		res.RiseTime = rise.at
		res.RiseAzimuth = rise.azimuth
	}
	if set := closer(setBefore, setAfter); set != nil {
		res.HasSet = true
		res.SetTime = set.at
		res.SetAzimuth = set.azimuth
	}
	return res
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
