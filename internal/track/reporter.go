// Package track delivers impression and conversion events. Delivery is
// fire-and-forget: a beacon-style POST first, then a best-effort ping, and
// both are allowed to fail silently. Losing an event is acceptable;
// breaking the host page is not.
package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ab-optimizer/ab-optimizer/internal/config"
	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

// Event types accepted by the tracking endpoint.
const (
	EventImpression = "impression"
	EventConversion = "conversion"
)

// DefaultTimeout bounds each delivery attempt.
const DefaultTimeout = 2 * time.Second

// Reporter sends events to the /api/track endpoint.
type Reporter struct {
	BaseURL   string
	UserAgent string
	Referrer  string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration

	// Now is injectable for timestamp tests.
	Now func() time.Time
}

// New returns a reporter for the given API base URL.
func New(baseURL string) *Reporter {
	return &Reporter{BaseURL: strings.TrimRight(baseURL, "/")}
}

type payload struct {
	ExperimentID string `json:"experimentId,omitempty"`
	VariationID  string `json:"variationId,omitempty"`
	EventType    string `json:"eventType"`
	URL          string `json:"url"`
	Timestamp    string `json:"timestamp"`
	Referrer     string `json:"referrer,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	store.UTMFields
}

// ReportImpression records that a visitor was shown a variation. Callers
// are responsible for single-firing (the session's applied flag).
func (r *Reporter) ReportImpression(ctx context.Context, experimentID, variationID string, page config.PageURL) {
	r.report(ctx, EventImpression, experimentID, variationID, page)
}

// ReportConversion records a completion event for the shown variation.
func (r *Reporter) ReportConversion(ctx context.Context, experimentID, variationID string, page config.PageURL) {
	r.report(ctx, EventConversion, experimentID, variationID, page)
}

func (r *Reporter) report(ctx context.Context, eventType, experimentID, variationID string, page config.PageURL) {
	p := payload{
		ExperimentID: experimentID,
		VariationID:  variationID,
		EventType:    eventType,
		URL:          page.Raw,
		Timestamp:    r.now().Format(time.RFC3339),
		Referrer:     r.Referrer,
		UserAgent:    r.UserAgent,
		UTMFields:    page.UTM,
	}

	if err := r.beacon(ctx, p); err == nil {
		return
	}
	if err := r.ping(ctx, p); err != nil {
		r.logger().Debug("event dropped", "type", eventType, "variation", variationID, "error", err)
	}
}

// beacon is the preferred channel: a short-deadline POST whose response
// body is ignored beyond success/failure.
func (r *Reporter) beacon(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	attempt, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attempt, http.MethodPost, r.BaseURL+"/api/track", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ping is the fallback: the same event flattened into query parameters on
// a GET, for paths where a POST cannot get through.
func (r *Reporter) ping(ctx context.Context, p payload) error {
	q := url.Values{}
	q.Set("eventType", p.EventType)
	if p.ExperimentID != "" {
		q.Set("experimentId", p.ExperimentID)
	}
	if p.VariationID != "" {
		q.Set("variationId", p.VariationID)
	}
	q.Set("url", p.URL)
	q.Set("timestamp", p.Timestamp)

	attempt, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attempt, http.MethodGet, r.BaseURL+"/api/track/ping?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (r *Reporter) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func (r *Reporter) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Reporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reporter) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
