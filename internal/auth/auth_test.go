package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestHandler(cfg Config) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(cfg)(next)
}

func TestMiddlewareDisabled(t *testing.T) {
	h := newTestHandler(Config{Enabled: false, Token: "secret"})
	r := httptest.NewRequest("GET", "/api/v1/sites", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth: got %d, want 200", w.Code)
	}
}

func TestMiddlewareEnabled(t *testing.T) {
	h := newTestHandler(Config{Enabled: true, Token: "secret"})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"exempt healthz", "/healthz", "", http.StatusOK},
		{"exempt readyz", "/readyz", "", http.StatusOK},
		{"exempt metrics", "/metrics", "", http.StatusOK},
		{"exempt root", "/", "", http.StatusOK},
		{"exempt events", "/api/v1/events?lat=51.5&lon=0", "", http.StatusOK},
		{"exempt position", "/api/v1/position?lat=51.5&lon=0", "", http.StatusOK},
		{"protected no token", "/api/v1/sites", "", http.StatusUnauthorized},
		{"protected wrong token", "/api/v1/sites", "Bearer nope", http.StatusUnauthorized},
		{"protected malformed header", "/api/v1/sites", "secret", http.StatusUnauthorized},
		{"protected valid token", "/api/v1/sites", "Bearer secret", http.StatusOK},
		{"stream requires token", "/api/v1/stream/track", "", http.StatusUnauthorized},
		{"stream valid token", "/api/v1/stream/track", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("%s %s: got %d, want %d", tt.path, tt.header, w.Code, tt.want)
			}
		})
	}
}
