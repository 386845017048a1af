package variation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ChangeType identifies what kind of edit a Change carries.
type ChangeType string

const (
	ChangeText    ChangeType = "text"
	ChangeImage   ChangeType = "image"
	ChangeVideo   ChangeType = "video"
	ChangeIframe  ChangeType = "iframe"
	ChangeSection ChangeType = "section"
)

// Change is one element edit within a variation, keyed by the CSS selector
// that locates its targets. The wire formats (elementData arrays, texts and
// sections maps) are all normalized into this one shape at the transport
// boundary, so nothing downstream branches on payload shape.
type Change struct {
	Selector string     `json:"selector"`
	Type     ChangeType `json:"type"`

	// Content is the replacement text/HTML for text changes.
	Content string `json:"content,omitempty"`

	// Src and Alt apply to image/video/iframe changes.
	Src string `json:"src,omitempty"`
	Alt string `json:"alt,omitempty"`

	// Visible is false for hide operations. Legacy marks changes that came
	// through the old per-element boolean sections map; those get a hard
	// display:none hide in live mode instead of the soft fade.
	Visible bool `json:"visible"`
	Legacy  bool `json:"legacy,omitempty"`

	// OriginalContent is what the authoring session saw before editing.
	// Informational only; the mutation engine captures its own originals.
	OriginalContent string `json:"originalContent,omitempty"`
}

// Variation is one test arm: a named bundle of element changes plus the
// share of traffic that should see it.
type Variation struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	WebsiteID         string    `json:"websiteId"`
	URL               string    `json:"url,omitempty"`
	TrafficAllocation float64   `json:"trafficAllocation"`
	Changes           []Change  `json:"changes"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`

	// ExperimentID is the owning experiment when the variation was
	// flattened out of one; empty for standalone variations.
	ExperimentID string `json:"experimentId,omitempty"`
}

// Experiment groups variations under shared traffic settings. Allocations
// need not sum to 100; the remainder is the unmodified control page.
type Experiment struct {
	ID              string             `json:"id"`
	Name            string             `json:"name,omitempty"`
	Variations      []Variation        `json:"variations"`
	TrafficSettings map[string]float64 `json:"trafficSettings,omitempty"`
}

// Candidates returns the experiment's variations with their effective
// allocation resolved: the per-experiment weight map wins over the
// variation's own trafficAllocation when both are present.
func (e *Experiment) Candidates() []Variation {
	out := make([]Variation, 0, len(e.Variations))
	for _, v := range e.Variations {
		if pct, ok := e.TrafficSettings[v.ID]; ok {
			v.TrafficAllocation = pct
		}
		v.ExperimentID = e.ID
		out = append(out, v)
	}
	return out
}

// Flatten merges the candidates of several experiments into one candidate
// set, each variation keeping its owning experiment id.
func Flatten(experiments []Experiment) []Variation {
	var out []Variation
	for i := range experiments {
		out = append(out, experiments[i].Candidates()...)
	}
	return out
}

// FullAllocation returns the single candidate carrying a 100% allocation,
// or nil when zero or several candidates do.
func FullAllocation(candidates []Variation) *Variation {
	var found *Variation
	for i := range candidates {
		if candidates[i].TrafficAllocation == 100 {
			if found != nil {
				return nil
			}
			found = &candidates[i]
		}
	}
	return found
}

// Signature fingerprints a candidate set for assignment keying. It covers
// the id set (order-independent) and the single-candidate-at-100 state, so
// changing either invalidates assignments made under the old configuration.
func Signature(candidates []Variation) string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString(strings.Join(ids, ","))
	if full := FullAllocation(candidates); full != nil {
		b.WriteString(";full=")
		b.WriteString(full.ID)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// FindByID returns the candidate with the given id, or nil.
func FindByID(candidates []Variation, id string) *Variation {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i]
		}
	}
	return nil
}
