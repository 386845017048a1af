package track_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
	"github.com/ab-optimizer/ab-optimizer/internal/track"
)

func TestReportImpression_Beacon(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/track" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := track.New(srv.URL)
	r.Referrer = "https://google.com"
	page := config.ParsePageURL("https://example.com/?utm_source=ads")

	r.ReportImpression(context.Background(), "exp-1", "v1", page)

	if got["eventType"] != "impression" {
		t.Errorf("got eventType %v", got["eventType"])
	}
	if got["experimentId"] != "exp-1" || got["variationId"] != "v1" {
		t.Errorf("got ids %v/%v", got["experimentId"], got["variationId"])
	}
	if got["referrer"] != "https://google.com" {
		t.Errorf("got referrer %v", got["referrer"])
	}
	if got["utmSource"] != "ads" {
		t.Errorf("got utmSource %v, want campaign params flattened in", got["utmSource"])
	}
	if got["timestamp"] == nil {
		t.Error("timestamp missing")
	}
}

func TestReport_FallsBackToPing(t *testing.T) {
	var pinged bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/track":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/track/ping":
			pinged = true
			q := r.URL.Query()
			if q.Get("eventType") != "conversion" || q.Get("variationId") != "v1" {
				t.Errorf("unexpected ping query %v", q)
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	r := track.New(srv.URL)
	r.ReportConversion(context.Background(), "exp-1", "v1", config.ParsePageURL("https://example.com/"))

	if !pinged {
		t.Fatal("ping fallback never fired")
	}
}

func TestReport_TotalFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or error; losing the event is the accepted outcome.
	r := track.New(srv.URL)
	r.ReportImpression(context.Background(), "exp-1", "v1", config.ParsePageURL("https://example.com/"))
}

func TestReport_NoPingWhenBeaconSucceeds(t *testing.T) {
	var pings int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/track/ping" {
			pings++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := track.New(srv.URL)
	r.ReportImpression(context.Background(), "exp-1", "v1", config.ParsePageURL("https://example.com/"))

	if pings != 0 {
		t.Errorf("got %d pings, want 0 when the beacon lands", pings)
	}
}
