package metrics

import "testing"

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/events", "/api/v1/events"},
		{"/api/v1/position", "/api/v1/position"},
		{"/api/v1/sites", "/api/v1/sites"},
		{"/api/v1/track/stats", "/api/v1/track/stats"},
		{"/api/v1/stream/track", "/api/v1/stream/track"},
		{"/api/v1/stream/track/ws", "/api/v1/stream/track/ws"},

		// Parameterized site routes collapse to one label each.
		{"/api/v1/sites/greenwich/events", "/api/v1/sites/{slug}/events"},
		{"/api/v1/sites/oslo/events", "/api/v1/sites/{slug}/events"},
		{"/api/v1/sites/greenwich/history", "/api/v1/sites/{slug}/history"},

		// Unknown/bot paths collapse to "other".
		{"/static/app.js", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/api/v1/sites/greenwich", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestSiteRouteCardinality verifies that many distinct site slugs produce a
// single path label, not one per slug.
func TestSiteRouteCardinality(t *testing.T) {
	slugs := []string{"a", "b", "c", "long-site-name", "x1", "x2", "x3"}
	seen := make(map[string]bool)
	for _, s := range slugs {
		seen[normalizeRoute("/api/v1/sites/"+s+"/events")] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for site event paths, got %d: %v", len(seen), seen)
	}
}
