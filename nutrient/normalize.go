package nutrient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
)

// ErrMalformedPayload is returned when an upstream body is not JSON.
var ErrMalformedPayload = errors.New("malformed nutrient payload")

// Shape describes where in a payload the nutrient values were found.
type Shape int

const (
	// ShapeFlat is nutrient keys directly on an object, possibly nested, e.g. {"nf_protein": 13}.
	ShapeFlat Shape = iota + 1
	// ShapeScoped is nutrient keys under a per-100g container, e.g. {"per_100g": {...}}.
	ShapeScoped
	// ShapeRecords is an array or map of {name, value, unit} records.
	ShapeRecords
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeScoped:
		return "scoped"
	case ShapeRecords:
		return "records"
	}
	return "unknown"
}

// Match is a normalized profile together with where it came from.
type Match struct {
	Profile Profile
	Shape   Shape
	// Scope is the JSON path of the object the profile was read from, "$" for the root.
	Scope string
	// Sources maps each known field to the path of the value it was read from.
	Sources map[Field]string
}

// hit is one candidate value for a rule.
type hit struct {
	value   float64
	unit    Unit
	path    string
	pattern int
	per100  bool
	depth   int
	order   int
	records bool
}

// extractor finds the best hit for a rule inside a scope.
type extractor func(scope any, path string, r rule) (hit, bool)

// extractors are tried in order for each rule: keyed values first, then records.
var extractors = []extractor{findKeyed, findRecord}

// Normalize reads an arbitrary upstream JSON body into a per-100g profile. It returns nil when the
// body is not JSON or carries neither energy nor a core macro.
func Normalize(raw []byte) *Profile {
	m, err := NormalizeBytes(raw)
	if err != nil {
		slog.Debug("NORMALIZE: Discarding payload", "error", err)
		return nil
	}
	if m == nil {
		return nil
	}
	return &m.Profile
}

// NormalizeBytes decodes raw and normalizes it. A nil match with a nil error means the payload was
// valid JSON without usable nutrient data.
func NormalizeBytes(raw []byte) (*Match, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return NormalizeValue(v), nil
}

// NormalizeValue normalizes an already decoded JSON value.
//
// Per-100g containers are preferred over the root. A container only counts when it yields energy or a
// core macro; otherwise the next one is tried and the root comes last.
func NormalizeValue(v any) *Match {
	if v == nil {
		return nil
	}
	type scope struct {
		path  string
		value any
	}
	var scopes []scope
	walkScopes(v, "$", func(path string, value any) {
		scopes = append(scopes, scope{path: path, value: value})
	})
	scopes = append(scopes, scope{path: "$", value: v})

	for _, s := range scopes {
		p, sources, records := extract(s.value, s.path)
		if !p.Usable() {
			continue
		}
		m := &Match{Profile: p, Scope: s.path, Sources: sources, Shape: ShapeFlat}
		switch {
		case s.path != "$":
			m.Shape = ShapeScoped
		case records:
			m.Shape = ShapeRecords
		}
		return m
	}
	return nil
}

func extract(scope any, path string) (Profile, map[Field]string, bool) {
	var p Profile
	sources := make(map[Field]string)
	allRecords := true

	for _, r := range rules {
		if p.Has(r.field) {
			continue
		}
		for _, find := range extractors {
			h, ok := find(scope, path, r)
			if !ok {
				continue
			}
			v, ok := Convert(h.value, h.unit, r.field.Unit())
			if !ok {
				continue
			}
			if r.factor != 0 {
				v *= r.factor
			}
			p.Set(r.field, v)
			sources[r.field] = h.path
			allRecords = allRecords && h.records
			break
		}
	}
	return p, sources, allRecords && len(sources) > 0
}

// walkScopes visits per-100g containers in deterministic order. It does not descend into a container
// once found.
func walkScopes(v any, path string, visit func(path string, value any)) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			child := t[k]
			childPath := path + "." + k
			if isScopeKey(k) {
				switch child.(type) {
				case map[string]any, []any:
					visit(childPath, child)
					continue
				}
			}
			walkScopes(child, childPath, visit)
		}
	case []any:
		for i, child := range t {
			walkScopes(child, fmt.Sprintf("%s[%d]", path, i), visit)
		}
	}
}

// findKeyed searches object keys depth-first without entering arrays. Candidates are ranked by pattern
// preference, then keys carrying a "100g" token, then shallower depth, then traversal order.
func findKeyed(scope any, path string, r rule) (hit, bool) {
	var best hit
	found, order := false, 0

	var walk func(v any, path string, depth int)
	walk = func(v any, path string, depth int) {
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		for _, k := range sortedKeys(m) {
			child := m[k]
			childPath := path + "." + k
			key := normalizeKey(k)
			tokens := strings.Fields(key)
			if skipKey(tokens) {
				continue
			}
			if _, nested := child.(map[string]any); nested {
				walk(child, childPath, depth+1)
				continue
			}
			pi, ok := r.matches(key)
			if !ok {
				continue
			}
			value, valueUnit, ok := parseValue(child)
			if !ok {
				continue
			}
			explicit, per100 := keyUnit(tokens)
			if valueUnit != unitUnknown {
				explicit = valueUnit
			}
			order++
			h := hit{
				value:   value,
				unit:    r.impliedUnit(explicit, per100),
				path:    childPath,
				pattern: pi,
				per100:  per100,
				depth:   depth,
				order:   order,
			}
			if !found || h.betterThan(best) {
				best, found = h, true
			}
		}
	}
	walk(scope, path, 0)
	return best, found
}

func (h hit) betterThan(o hit) bool {
	if h.pattern != o.pattern {
		return h.pattern < o.pattern
	}
	if h.per100 != o.per100 {
		return h.per100
	}
	if h.depth != o.depth {
		return h.depth < o.depth
	}
	return h.order < o.order
}

// findRecord searches arrays and nested objects for {label, value, unit} records. Candidates are ranked by
// pattern preference, then traversal order.
func findRecord(scope any, path string, r rule) (hit, bool) {
	var best hit
	found, order := false, 0

	var walk func(v any, path string)
	walk = func(v any, path string) {
		switch t := v.(type) {
		case map[string]any:
			if label, value, unit, ok := readRecord(t); ok {
				if pi, ok := r.matches(normalizeKey(label)); ok {
					order++
					h := hit{value: value, unit: r.impliedUnit(unit, false), path: path, pattern: pi, order: order, records: true}
					if !found || h.pattern < best.pattern {
						best, found = h, true
					}
				}
				return
			}
			for _, k := range sortedKeys(t) {
				walk(t[k], path+"."+k)
			}
		case []any:
			for i, child := range t {
				walk(child, fmt.Sprintf("%s[%d]", path, i))
			}
		}
	}
	walk(scope, path)
	return best, found
}

// readRecord recognizes a record object. The label may be a nested object with its own name and
// unit, as in USDA FoodData Central's {"nutrient": {"name": ..., "unitName": ...}, "amount": ...}.
// An object that carries nutrient keys of its own is a product, not a record, even when it has a name.
func readRecord(m map[string]any) (string, float64, Unit, bool) {
	if hasNutrientKeys(m) {
		return "", 0, unitUnknown, false
	}
	var label string
	unit := unitUnknown
	for _, k := range labelKeys {
		switch l := m[k].(type) {
		case string:
			label = l
		case map[string]any:
			if name, ok := l["name"].(string); ok {
				label = name
				unit = recordUnit(l)
			}
		}
		if label != "" {
			break
		}
	}
	if label == "" {
		return "", 0, unitUnknown, false
	}

	for _, k := range valueKeys {
		child, ok := m[k]
		if !ok {
			continue
		}
		value, valueUnit, ok := parseValue(child)
		if !ok {
			continue
		}
		if u := recordUnit(m); u != unitUnknown {
			unit = u
		}
		if valueUnit != unitUnknown {
			unit = valueUnit
		}
		return label, value, unit, true
	}
	return "", 0, unitUnknown, false
}

// hasNutrientKeys reports whether any scalar key of m, other than label and unit keys, names a nutrient.
func hasNutrientKeys(m map[string]any) bool {
	for k, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		if slices.Contains(labelKeys, k) || slices.Contains(unitKeys, k) {
			continue
		}
		key := normalizeKey(k)
		if skipKey(strings.Fields(key)) {
			continue
		}
		for _, r := range rules {
			if _, ok := r.matches(key); ok {
				return true
			}
		}
	}
	return false
}

func recordUnit(m map[string]any) Unit {
	for _, k := range unitKeys {
		if s, ok := m[k].(string); ok {
			if u := ParseUnit(s); u != unitUnknown {
				return u
			}
		}
	}
	return unitUnknown
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
