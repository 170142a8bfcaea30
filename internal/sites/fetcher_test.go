package sites

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcherFetch(t *testing.T) {
	const body = "greenwich,Royal Observatory Greenwich,51.4769,-0.0005\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL)
	if f.SourceURL() != srv.URL {
		t.Errorf("SourceURL = %q, want %q", f.SourceURL(), srv.URL)
	}

	got, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != body {
		t.Errorf("Fetch = %q, want %q", got, body)
	}
}

func TestFetcherFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Error("Fetch on 500: want error")
	}
}

func TestFetcherFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), maxCatalogBytes+1))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Error("Fetch with oversized body: want error")
	}
}

func TestFetcherFetchContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(srv.URL)
	if _, err := f.Fetch(ctx); err == nil {
		t.Error("Fetch with canceled context: want error")
	}
}
