package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectorKind distinguishes the two selector shapes.
type SelectorKind int

const (
	SelectorInvalid SelectorKind = iota
	SelectorSingle
	SelectorTiered
)

// Selector locates the price text on a vendor page. A single selector prices
// every tier from one locator; a tiered selector maps tier labels to locators
// and leaves unconfigured tiers to inherit the next lower tier's price.
//
// Configuration problems are kept on the value and surface through Validate
// so that one bad site entry fails that site rather than the whole run.
type Selector struct {
	Kind    SelectorKind
	Locator string
	Tiers   map[Tier]string

	problem string
}

// SingleSelector builds a selector that prices all tiers from one locator.
func SingleSelector(locator string) Selector {
	return selectorFromValue(locator)
}

// TieredSelector builds a selector from tier label to locator pairs.
func TieredSelector(tiers map[string]string) Selector {
	raw := make(map[string]interface{}, len(tiers))
	for k, v := range tiers {
		raw[k] = v
	}
	return selectorFromValue(raw)
}

// Tier returns the locator configured for t.
func (s Selector) Tier(t Tier) (string, bool) {
	loc, ok := s.Tiers[t]
	return loc, ok
}

// Validate reports a malformed selector.
func (s Selector) Validate() error {
	if s.problem != "" {
		return fmt.Errorf("malformed selector: %s", s.problem)
	}
	switch s.Kind {
	case SelectorSingle:
		return nil
	case SelectorTiered:
		if _, ok := s.Tiers[Tier100]; !ok {
			return fmt.Errorf("malformed selector: tier %q is required", Tier100)
		}
		return nil
	default:
		return fmt.Errorf("malformed selector: not configured")
	}
}

// String renders the selector for logs.
func (s Selector) String() string {
	switch s.Kind {
	case SelectorSingle:
		return s.Locator
	case SelectorTiered:
		parts := make([]string, 0, len(s.Tiers))
		for t, loc := range s.Tiers {
			parts = append(parts, string(t)+"="+loc)
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "<invalid>"
	}
}

// UnmarshalJSON accepts either a locator string or an object of tier locators.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = selectorFromValue(raw)
	return nil
}

// MarshalJSON writes the selector back in its configuration shape.
func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SelectorSingle:
		return json.Marshal(s.Locator)
	case SelectorTiered:
		out := make(map[string]string, len(s.Tiers))
		for t, loc := range s.Tiers {
			out[string(t)] = loc
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML site lists.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*s = selectorFromValue(raw)
	return nil
}

func selectorFromValue(raw interface{}) Selector {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return Selector{problem: "empty locator"}
		}
		return Selector{Kind: SelectorSingle, Locator: v}
	case map[string]interface{}:
		return tieredFromMap(v)
	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(v))
		for k, val := range v {
			converted[fmt.Sprint(k)] = val
		}
		return tieredFromMap(converted)
	case nil:
		return Selector{problem: "missing selector"}
	default:
		return Selector{problem: fmt.Sprintf("expected a locator or tier map, got %T", raw)}
	}
}

func tieredFromMap(entries map[string]interface{}) Selector {
	if len(entries) == 0 {
		return Selector{problem: "no tiers configured"}
	}
	sel := Selector{Kind: SelectorTiered, Tiers: make(map[Tier]string, len(entries))}
	for key, val := range entries {
		tier := Tier(key)
		if tier != Tier100 && tier != Tier150 && tier != Tier200 {
			return Selector{problem: fmt.Sprintf("unknown tier %q", key)}
		}
		loc, ok := val.(string)
		if !ok || strings.TrimSpace(loc) == "" {
			return Selector{problem: fmt.Sprintf("tier %q needs a locator string", key)}
		}
		sel.Tiers[tier] = loc
	}
	return sel
}
