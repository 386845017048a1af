package variation

import (
	"time"

	"github.com/tidwall/gjson"
)

// The remote API predates this client and answers in several shapes: bare
// arrays or {variations:[...]} / {experiments:[...]} envelopes, element
// changes as an elementData array or as texts/sections maps, content as a
// plain string or an object, visibility as a boolean or an object. All of
// that is resolved here, once, into the canonical model.

// ParseVariationList normalizes a variation-list payload.
func ParseVariationList(data []byte) []Variation {
	root := gjson.ParseBytes(data)

	list := root
	if root.IsObject() {
		list = root.Get("variations")
	}
	if !list.IsArray() {
		if root.IsObject() && root.Get("id").Exists() {
			v := ParseVariation(root)
			return []Variation{v}
		}
		return nil
	}

	var out []Variation
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, ParseVariation(item))
		return true
	})
	return out
}

// ParseVariation normalizes a single variation object.
func ParseVariation(res gjson.Result) Variation {
	v := Variation{
		ID:                res.Get("id").String(),
		Name:              res.Get("name").String(),
		WebsiteID:         res.Get("websiteId").String(),
		URL:               res.Get("url").String(),
		TrafficAllocation: res.Get("trafficAllocation").Float(),
		CreatedAt:         parseTimestamp(res.Get("createdAt")),
	}

	if changes := res.Get("changes"); changes.IsArray() {
		changes.ForEach(func(_, item gjson.Result) bool {
			v.Changes = append(v.Changes, parseCanonicalChange(item))
			return true
		})
	}

	if ed := res.Get("elementData"); ed.IsArray() {
		ed.ForEach(func(_, item gjson.Result) bool {
			if c, ok := parseElementData(item); ok {
				v.Changes = append(v.Changes, c)
			}
			return true
		})
	}

	content := res.Get("content")
	if !content.Exists() {
		content = res
	}
	if texts := content.Get("texts"); texts.IsObject() {
		texts.ForEach(func(sel, val gjson.Result) bool {
			v.Changes = append(v.Changes, parseTextEntry(sel.String(), val))
			return true
		})
	}
	if sections := content.Get("sections"); sections.IsObject() {
		sections.ForEach(func(sel, val gjson.Result) bool {
			v.Changes = append(v.Changes, parseSectionEntry(sel.String(), val))
			return true
		})
	}

	return v
}

// ParseExperimentList normalizes an experiment-list payload.
func ParseExperimentList(data []byte) []Experiment {
	root := gjson.ParseBytes(data)

	list := root
	if root.IsObject() {
		list = root.Get("experiments")
	}
	if !list.IsArray() {
		return nil
	}

	var out []Experiment
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, parseExperiment(item))
		return true
	})
	return out
}

func parseExperiment(res gjson.Result) Experiment {
	e := Experiment{
		ID:   res.Get("id").String(),
		Name: res.Get("name").String(),
	}

	res.Get("variations").ForEach(func(_, item gjson.Result) bool {
		e.Variations = append(e.Variations, ParseVariation(item))
		return true
	})

	if ts := res.Get("trafficSettings"); ts.IsObject() {
		e.TrafficSettings = map[string]float64{}
		ts.ForEach(func(id, pct gjson.Result) bool {
			e.TrafficSettings[id.String()] = pct.Float()
			return true
		})
	} else if ta := res.Get("trafficAllocation.variations"); ta.IsArray() {
		// Original per-experiment shape: [{id, percentage, isControl}].
		// Control entries are dropped; control is the implicit remainder.
		e.TrafficSettings = map[string]float64{}
		ta.ForEach(func(_, item gjson.Result) bool {
			if !item.Get("isControl").Bool() {
				e.TrafficSettings[item.Get("id").String()] = item.Get("percentage").Float()
			}
			return true
		})
	}

	return e
}

// parseCanonicalChange reads the client's own serialization back, the shape
// produced by saving through the authoring flow.
func parseCanonicalChange(item gjson.Result) Change {
	return Change{
		Selector:        item.Get("selector").String(),
		Type:            ChangeType(item.Get("type").String()),
		Content:         item.Get("content").String(),
		Src:             item.Get("src").String(),
		Alt:             item.Get("alt").String(),
		Visible:         item.Get("visible").Bool(),
		Legacy:          item.Get("legacy").Bool(),
		OriginalContent: item.Get("originalContent").String(),
	}
}

func parseElementData(item gjson.Result) (Change, bool) {
	sel := item.Get("selector").String()
	if sel == "" {
		return Change{}, false
	}

	c := Change{
		Selector:        sel,
		Visible:         item.Get("action").String() != "hide",
		OriginalContent: item.Get("originalContent").String(),
	}

	switch item.Get("type").String() {
	case "image":
		c.Type = ChangeImage
		c.Src = item.Get("newContent").String()
	case "video":
		c.Type = ChangeVideo
		c.Src = item.Get("newContent").String()
	case "iframe":
		c.Type = ChangeIframe
		c.Src = item.Get("newContent").String()
	default:
		c.Type = ChangeText
		c.Content = item.Get("newContent").String()
	}
	return c, true
}

func parseTextEntry(sel string, val gjson.Result) Change {
	c := Change{Selector: sel, Visible: true}

	if val.Type == gjson.String {
		c.Type = ChangeText
		c.Content = val.String()
		return c
	}

	switch val.Get("type").String() {
	case "image", "video", "iframe":
		c.Type = ChangeType(val.Get("type").String())
		c.Src = val.Get("src").String()
		c.Alt = val.Get("alt").String()
		if vis := val.Get("visible"); vis.Exists() {
			c.Visible = vis.Bool()
		}
	default:
		c.Type = ChangeText
		c.Content = val.Get("content").String()
		if vis := val.Get("visible"); vis.Exists() {
			c.Visible = vis.Bool()
		}
	}
	return c
}

func parseSectionEntry(sel string, val gjson.Result) Change {
	c := Change{Selector: sel, Type: ChangeSection}

	if val.IsObject() {
		c.Visible = val.Get("visible").Bool()
		return c
	}
	// Bare boolean: the legacy schema, which hard-hides in live mode.
	c.Visible = val.Bool()
	c.Legacy = true
	return c
}

func parseTimestamp(res gjson.Result) time.Time {
	if !res.Exists() {
		return time.Time{}
	}
	if res.Type == gjson.Number {
		return time.Unix(res.Int(), 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, res.String()); err == nil {
		return t
	}
	return time.Time{}
}
