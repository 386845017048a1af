// Package transport fetches variation and experiment definitions from the
// remote service. Every read walks an ordered chain of strategies (the
// authenticated endpoint, the public endpoint, the JSONP endpoint, and
// finally the local response cache) with an independent timeout per
// attempt. First success wins and stops the chain; total exhaustion yields
// an empty result, never an error the host page could trip over.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
	"github.com/ab-optimizer/ab-optimizer/internal/variation"
)

// DefaultStrategyTimeout bounds each individual strategy attempt.
const DefaultStrategyTimeout = 3 * time.Second

// Client talks to the remote A/B service.
type Client struct {
	BaseURL string
	Token   string // optional bearer for the authenticated strategy

	HTTPClient      *http.Client
	Cache           store.ResponseCache
	Logger          *slog.Logger
	StrategyTimeout time.Duration
}

// New returns a client for the given API base URL.
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

// FetchActiveExperiments returns the website's running experiments, or nil
// when nothing could be fetched from any strategy.
func (c *Client) FetchActiveExperiments(ctx context.Context, websiteID string) []variation.Experiment {
	path := fmt.Sprintf("/api/websites/%s/active-experiments", url.PathEscape(websiteID))
	payload := c.fetchChain(ctx, "experiments:"+websiteID, path)
	if payload == nil {
		return nil
	}
	return variation.ParseExperimentList(payload)
}

// FetchVariations returns the website's variations, or nil.
func (c *Client) FetchVariations(ctx context.Context, websiteID string) []variation.Variation {
	path := fmt.Sprintf("/api/websites/%s/variations", url.PathEscape(websiteID))
	payload := c.fetchChain(ctx, "variations:"+websiteID, path)
	if payload == nil {
		return nil
	}
	return variation.ParseVariationList(payload)
}

// FetchVariationByID returns one variation, or nil when it cannot be
// fetched.
func (c *Client) FetchVariationByID(ctx context.Context, id string) *variation.Variation {
	path := "/api/variations/" + url.PathEscape(id)
	payload := c.fetchChain(ctx, "variation:"+id, path)
	if payload == nil {
		return nil
	}
	v := variation.ParseVariation(gjson.ParseBytes(payload))
	if v.ID == "" {
		return nil
	}
	return &v
}

// SaveVariation creates a variation record. Unlike the read side this
// surfaces errors: saving happens in an authoring session with a live
// operator watching.
func (c *Client) SaveVariation(ctx context.Context, v *variation.Variation) (*variation.Variation, error) {
	return c.write(ctx, http.MethodPost, "/api/variations", v)
}

// UpdateVariation replaces an existing variation record.
func (c *Client) UpdateVariation(ctx context.Context, v *variation.Variation) (*variation.Variation, error) {
	if v.ID == "" {
		return nil, errors.New("variation id required for update")
	}
	return c.write(ctx, http.MethodPut, "/api/variations/"+url.PathEscape(v.ID), v)
}

func (c *Client) write(ctx context.Context, method, path string, v *variation.Variation) (*variation.Variation, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to save variation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("save variation: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read save response: %w", err)
	}
	saved := variation.ParseVariation(gjson.ParseBytes(data))
	return &saved, nil
}

// fetchChain runs the strategies for a read path in order and returns the
// first good payload. Good payloads refresh the cache entry that backs the
// terminal strategy.
func (c *Client) fetchChain(ctx context.Context, cacheKey, path string) []byte {
	strategies := []struct {
		name string
		run  func(context.Context) ([]byte, error)
	}{
		{"direct", func(ctx context.Context) ([]byte, error) { return c.get(ctx, path, true) }},
		{"public", func(ctx context.Context) ([]byte, error) { return c.get(ctx, path+"/public", false) }},
		{"jsonp", func(ctx context.Context) ([]byte, error) { return c.getJSONP(ctx, path+"/jsonp") }},
	}

	for _, s := range strategies {
		attempt, cancel := context.WithTimeout(ctx, c.strategyTimeout())
		payload, err := s.run(attempt)
		cancel()
		if err != nil {
			c.logger().Debug("fetch strategy failed", "strategy", s.name, "path", path, "error", err)
			continue
		}
		if !gjson.ValidBytes(payload) {
			c.logger().Debug("fetch strategy returned malformed payload", "strategy", s.name, "path", path)
			continue
		}
		if c.Cache != nil {
			if err := c.Cache.PutCachedPayload(ctx, cacheKey, payload); err != nil {
				c.logger().Debug("failed to refresh response cache", "key", cacheKey, "error", err)
			}
		}
		return payload
	}

	if c.Cache != nil {
		if payload, err := c.Cache.GetCachedPayload(ctx, cacheKey); err == nil {
			c.logger().Debug("serving cached payload", "key", cacheKey)
			return payload
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, authenticated bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if authenticated {
		c.authorize(req)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// getJSONP requests the callback-wrapped twin of an endpoint. Each request
// mints a fresh single-use callback name and accepts only a payload wrapped
// in exactly that name; the name is never reused, so a late or duplicate
// response can't fire twice. This is the script-tag transport's
// remove-tag-and-callback rule, translated.
func (c *Client) getJSONP(ctx context.Context, path string) ([]byte, error) {
	callback := "abcb_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+path+"?callback="+callback, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return unwrapJSONP(body, callback)
}

// unwrapJSONP extracts the payload from a "name(payload);" wrapper,
// rejecting bodies wrapped in any other callback name.
func unwrapJSONP(body []byte, callback string) ([]byte, error) {
	s := strings.TrimSpace(string(body))
	if !strings.HasPrefix(s, callback+"(") {
		return nil, fmt.Errorf("jsonp response not wrapped in expected callback")
	}
	s = strings.TrimPrefix(s, callback+"(")
	s = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(s), ";"), ")")
	return []byte(s), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) strategyTimeout() time.Duration {
	if c.StrategyTimeout > 0 {
		return c.StrategyTimeout
	}
	return DefaultStrategyTimeout
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
