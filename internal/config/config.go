// Package config resolves the client's operating parameters: the website
// identity and API endpoint supplied by the host environment, and the
// query parameters of the page URL the pipeline is running on.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ab-optimizer/ab-optimizer/internal/store"
)

// Config is what the client needs from its host.
type Config struct {
	WebsiteID string
	APIURL    string
	Token     string
	DBPath    string
}

// FromEnv fills unset fields from the ABO_* environment, mirroring how the
// browser build reads host-page globals and script-tag attributes.
func (c Config) FromEnv() Config {
	if c.WebsiteID == "" {
		c.WebsiteID = os.Getenv("ABO_WEBSITE_ID")
	}
	if c.APIURL == "" {
		c.APIURL = os.Getenv("ABO_API_URL")
	}
	if c.Token == "" {
		c.Token = os.Getenv("ABO_API_TOKEN")
	}
	if c.DBPath == "" {
		c.DBPath = EnvOrDefault("ABO_DB_PATH", "./abopt.db")
	}
	return c
}

// Validate checks the fields the pipeline cannot run without.
func (c Config) Validate() error {
	if c.WebsiteID == "" {
		return fmt.Errorf("website id required (flag or ABO_WEBSITE_ID)")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url required (flag or ABO_API_URL)")
	}
	return nil
}

// EnvOrDefault returns the environment value for key, or fallback.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PageURL is the interpreted page address a session runs on. The query
// string carries the client's control parameters: a forced variation
// (exp_<id>), the design-mode switch, an edit target, and the assignment
// cache reset flag.
type PageURL struct {
	Raw  string
	Path string

	ForcedVariationID string
	DesignMode        bool
	EditVariationID   string
	ResetAssignments  bool

	UTM store.UTMFields
}

// ParsePageURL interprets a page URL. A URL that does not parse still
// yields a usable value (bare path, no flags): a broken address must not
// take the pipeline down.
func ParsePageURL(raw string) PageURL {
	p := PageURL{Raw: raw, Path: "/"}

	u, err := url.Parse(raw)
	if err != nil {
		return p
	}
	if u.Path != "" {
		p.Path = u.Path
	}

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "exp_") && len(key) > len("exp_") {
			p.ForcedVariationID = strings.TrimPrefix(key, "exp_")
			break
		}
	}
	p.DesignMode = q.Has("design")
	p.EditVariationID = q.Get("variation")
	p.ResetAssignments = q.Has("ab_reset")

	p.UTM = store.UTMFields{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
	return p
}

// CleanURL strips the query string and fragment, the address a page is
// returned to when an authoring session closes.
func (p PageURL) CleanURL() string {
	base, _, _ := strings.Cut(p.Raw, "?")
	base, _, _ = strings.Cut(base, "#")
	return base
}
