package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/httputil"
	"github.com/sun/sunwatch/internal/metrics"
	"github.com/sun/sunwatch/internal/sites"
)

const (
	minWindow = 2
	maxWindow = 168
)

// parseCoordinates validates lat and lon query parameters.
func parseCoordinates(r *http.Request) (lat, lon float64, errMsg string) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		return 0, 0, "lat and lon parameters are required"
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, "invalid lat parameter, must be -90 to 90"
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, "invalid lon parameter, must be -180 to 180"
	}
	return lat, lon, ""
}

// parseTime reads the optional t parameter (unix seconds). Defaults to now.
func parseTime(r *http.Request) (time.Time, string) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return time.Now().UTC(), ""
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, "invalid t parameter, must be unix seconds"
	}
	return time.Unix(unix, 0).UTC(), ""
}

// parseWindow reads the optional window parameter (hours). Defaults to the
// server's configured calculator.
func (s *Server) parseWindow(r *http.Request) (ephemeris.Calculator, string) {
	v := r.URL.Query().Get("window")
	if v == "" {
		return s.calc, ""
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minWindow || n > maxWindow {
		return ephemeris.Calculator{}, "invalid window parameter, must be an even number of hours, 2-168"
	}
	calc, err := ephemeris.NewCalculator(n)
	if err != nil {
		return ephemeris.Calculator{}, "invalid window parameter, must be an even number of hours, 2-168"
	}
	return calc, ""
}

// handleEvents computes rise/set events for an arbitrary coordinate.
// GET /api/v1/events?lat=51.5&lon=-0.1&t=1770000000&window=48
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	lat, lon, errMsg := parseCoordinates(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}
	t, errMsg := parseTime(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}
	calc, errMsg := s.parseWindow(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}

	start := time.Now()
	result := calc.Calculate(lat, lon, t)
	metrics.ObserveCalculation("api", time.Since(start))

	httputil.WriteJSON(w, http.StatusOK, result)
}

// positionResponse is the payload for the position endpoint.
type positionResponse struct {
	QueryTime      time.Time                       `json:"query_time"`
	RightAscension float64                         `json:"right_ascension_hours"`
	Declination    float64                         `json:"declination"`
	Horizontal     ephemeris.HorizontalCoordinates `json:"horizontal"`
	Visible        bool                            `json:"visible"`
}

// handlePosition reports the sun's current position for a coordinate.
// GET /api/v1/position?lat=51.5&lon=-0.1&t=1770000000
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	lat, lon, errMsg := parseCoordinates(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}
	t, errMsg := parseTime(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}

	sc, hc := ephemeris.Position(lat, lon, t)
	httputil.WriteJSON(w, http.StatusOK, positionResponse{
		QueryTime:      t.Truncate(time.Second).UTC(),
		RightAscension: sc.RightAscension,
		Declination:    sc.Declination,
		Horizontal:     hc,
		Visible:        ephemeris.AboveHorizon(lat, lon, t),
	})
}

// catalogResponse is the payload for the site listing endpoint.
type catalogResponse struct {
	Source   string       `json:"source"`
	LoadedAt time.Time    `json:"loaded_at"`
	Sites    []sites.Site `json:"sites"`
}

// handleSites lists the current site catalog.
// GET /api/v1/sites
func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	catalog := s.store.Get()
	if catalog == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "site catalog not loaded")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, catalogResponse{
		Source:   catalog.Source,
		LoadedAt: catalog.LoadedAt.UTC(),
		Sites:    catalog.Sites,
	})
}

// siteEventsResponse is the payload for the per-site events endpoint.
type siteEventsResponse struct {
	Site   sites.Site       `json:"site"`
	Events ephemeris.Result `json:"events"`
}

// handleSiteEvents computes rise/set events for a catalog site, recording
// the result to history when enabled.
// GET /api/v1/sites/{slug}/events?t=1770000000&window=48
func (s *Server) handleSiteEvents(w http.ResponseWriter, r *http.Request) {
	catalog := s.store.Get()
	if catalog == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "site catalog not loaded")
		return
	}

	slug := r.PathValue("slug")
	site, ok := catalog.Find(slug)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "unknown site")
		return
	}

	t, errMsg := parseTime(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}
	calc, errMsg := s.parseWindow(r)
	if errMsg != "" {
		httputil.WriteError(w, http.StatusBadRequest, errMsg)
		return
	}

	start := time.Now()
	result := calc.Calculate(site.Latitude, site.Longitude, t)
	metrics.ObserveCalculation("site", time.Since(start))

	if s.recorder != nil {
		if err := s.recorder.Save(r.Context(), site.Slug, result); err != nil {
			s.logger.Warn("history save failed", "site", site.Slug, "error", err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, siteEventsResponse{Site: site, Events: result})
}

// handleSiteHistory returns persisted event rows for a catalog site.
// GET /api/v1/sites/{slug}/history?limit=100
func (s *Server) handleSiteHistory(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	catalog := s.store.Get()
	if catalog == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "site catalog not loaded")
		return
	}

	slug := r.PathValue("slug")
	if _, ok := catalog.Find(slug); !ok {
		httputil.WriteError(w, http.StatusNotFound, "unknown site")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid limit parameter, must be 1-1000")
			return
		}
		limit = n
	}

	records, err := s.recorder.Recent(r.Context(), slug, limit)
	if err != nil {
		s.logger.Warn("history query failed", "site", slug, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"site":    slug,
		"records": records,
	})
}

// handleTrackStats reports track cache statistics.
// GET /api/v1/track/stats
func (s *Server) handleTrackStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.track.Stats())
}
