package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sun/sunwatch/internal/auth"
	"github.com/sun/sunwatch/internal/ephemeris"
	"github.com/sun/sunwatch/internal/sites"
	"github.com/sun/sunwatch/internal/solartrack"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore() *sites.Store {
	store := sites.NewStore()
	store.Set(&sites.Catalog{
		Source:   "test",
		LoadedAt: time.Date(2026, 2, 6, 3, 45, 0, 0, time.UTC),
		Sites: []sites.Site{
			{Slug: "greenwich", Name: "Greenwich", Latitude: 51.4769, Longitude: -0.0005},
			{Slug: "quito", Name: "Quito", Latitude: -0.1807, Longitude: -78.4675},
		},
	})
	return store
}

func testServer(store *sites.Store) *Server {
	track := solartrack.NewTrackCache(solartrack.Config{
		Step:        5 * time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}, store, testLogger())

	return NewServer(":0", testLogger(), auth.Config{}, ephemeris.Calculator{}, store, track, nil, nil, nil)
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	s.HTTPServer().Handler.ServeHTTP(w, req)
	return w
}

// TestEventsEndpoint verifies the anonymous events computation.
func TestEventsEndpoint(t *testing.T) {
	s := testServer(testStore())

	// Equator at noon UTC: both events must exist.
	query := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC).Unix()
	w := do(t, s, "/api/v1/events?lat=0&lon=0&t="+strconv.FormatInt(query, 10))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result ephemeris.Result
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.HasRise || !result.HasSet {
		t.Errorf("equator query missing events: %+v", result)
	}
	if !result.Visible {
		t.Error("sun should be visible at equator noon")
	}
}

// TestEventsEndpointValidation verifies 400 responses for bad parameters.
func TestEventsEndpointValidation(t *testing.T) {
	s := testServer(testStore())

	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "?lon=0"},
		{"missing lon", "?lat=0"},
		{"lat out of range", "?lat=91&lon=0"},
		{"lon out of range", "?lat=0&lon=-181"},
		{"lat non-numeric", "?lat=abc&lon=0"},
		{"bad time", "?lat=0&lon=0&t=notaunix"},
		{"odd window", "?lat=0&lon=0&window=47"},
		{"window too small", "?lat=0&lon=0&window=0"},
		{"window too large", "?lat=0&lon=0&window=200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "/api/v1/events"+tt.query)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var resp map[string]any
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

// TestPositionEndpoint verifies the position payload shape.
func TestPositionEndpoint(t *testing.T) {
	s := testServer(testStore())

	query := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC).Unix()
	w := do(t, s, "/api/v1/position?lat=0&lon=0&t="+strconv.FormatInt(query, 10))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	ra, ok := resp["right_ascension_hours"].(float64)
	if !ok || ra < 0 || ra >= 24 {
		t.Errorf("right_ascension_hours = %v", resp["right_ascension_hours"])
	}
	if _, ok := resp["horizontal"].(map[string]any); !ok {
		t.Errorf("horizontal = %v", resp["horizontal"])
	}
	if resp["visible"] != true {
		t.Error("sun should be visible at equator noon")
	}
}

// TestSitesEndpoint verifies the catalog listing.
func TestSitesEndpoint(t *testing.T) {
	s := testServer(testStore())

	w := do(t, s, "/api/v1/sites")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp catalogResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Source != "test" || len(resp.Sites) != 2 {
		t.Errorf("catalog = %+v", resp)
	}
}

// TestSitesEndpointNotLoaded verifies 503 before the catalog bootstrap.
func TestSitesEndpointNotLoaded(t *testing.T) {
	s := testServer(sites.NewStore())

	if w := do(t, s, "/api/v1/sites"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("sites status = %d, want 503", w.Code)
	}
	if w := do(t, s, "/api/v1/sites/greenwich/events"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("site events status = %d, want 503", w.Code)
	}
	if w := do(t, s, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", w.Code)
	}
}

// TestSiteEventsEndpoint verifies per-site computation and 404 handling.
func TestSiteEventsEndpoint(t *testing.T) {
	s := testServer(testStore())

	query := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC).Unix()
	w := do(t, s, "/api/v1/sites/greenwich/events?t="+strconv.FormatInt(query, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp siteEventsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Site.Slug != "greenwich" {
		t.Errorf("site = %+v", resp.Site)
	}
	if !resp.Events.HasRise || !resp.Events.HasSet {
		t.Errorf("greenwich March query missing events: %+v", resp.Events)
	}

	if w := do(t, s, "/api/v1/sites/nowhere/events"); w.Code != http.StatusNotFound {
		t.Errorf("unknown site status = %d, want 404", w.Code)
	}
}

// TestSiteHistoryDisabled verifies 503 when no recorder is configured.
func TestSiteHistoryDisabled(t *testing.T) {
	s := testServer(testStore())

	if w := do(t, s, "/api/v1/sites/greenwich/history"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// TestTrackStatsEndpoint verifies the stats payload decodes.
func TestTrackStatsEndpoint(t *testing.T) {
	s := testServer(testStore())

	w := do(t, s, "/api/v1/track/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var stats solartrack.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0 for cold cache", stats.Entries)
	}
}

// TestHealthEndpoints verifies liveness and readiness.
func TestHealthEndpoints(t *testing.T) {
	s := testServer(testStore())

	if w := do(t, s, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
	if w := do(t, s, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("readyz status = %d", w.Code)
	}
	if w := do(t, s, "/metrics"); w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

// TestAuthProtectsSites verifies the middleware chain is wired.
func TestAuthProtectsSites(t *testing.T) {
	store := testStore()
	track := solartrack.NewTrackCache(solartrack.Config{
		Step: 5 * time.Second, Horizon: 30 * time.Second,
		GracePeriod: 5 * time.Second, Buffer: 10 * time.Second,
	}, store, testLogger())

	s := NewServer(":0", testLogger(), auth.Config{Enabled: true, Token: "secret"},
		ephemeris.Calculator{}, store, track, nil, nil, nil)

	if w := do(t, s, "/api/v1/sites"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	// Anonymous computation endpoints stay open.
	if w := do(t, s, "/api/v1/events?lat=0&lon=0"); w.Code != http.StatusOK {
		t.Errorf("events status = %d, want 200", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/sites", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.HTTPServer().Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}
}
