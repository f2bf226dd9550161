package nasa_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skywatch/skywatch/internal/skywatch/nasa"
)

func TestPictureOfTheDay(t *testing.T) {
	const payload = `{"title":"Pillars of Creation","media_type":"image"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/planetary/apod" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("api_key = %q", r.URL.Query().Get("api_key"))
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := nasa.New(nasa.Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: time.Second})
	body, err := c.PictureOfTheDay(context.Background())
	if err != nil {
		t.Fatalf("PictureOfTheDay: %v", err)
	}
	if string(body) != payload {
		t.Errorf("body = %q", body)
	}
}

func TestFireballMap_ReturnsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>fireballs</body></html>"))
	}))
	defer srv.Close()

	c := nasa.New(nasa.Config{FireballMapURL: srv.URL, Timeout: time.Second})
	html, err := c.FireballMap(context.Background())
	if err != nil {
		t.Fatalf("FireballMap: %v", err)
	}
	if !strings.Contains(html, "fireballs") {
		t.Errorf("html = %q", html)
	}
}

func TestPictureOfTheDay_UpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := nasa.New(nasa.Config{BaseURL: srv.URL, Timeout: time.Second})
	if _, err := c.PictureOfTheDay(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 403 upstream")
	}
}
