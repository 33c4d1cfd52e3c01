package nutrient

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reference is a per-100g profile for a common food, matched against ingredient names.
type Reference struct {
	Name    string
	Pattern *regexp.Regexp
	Profile Profile
}

// referenceJSON is the on-disk form of a Reference.
type referenceJSON struct {
	Name    string  `json:"name"`
	Pattern string  `json:"pattern,omitempty"`
	Profile Profile `json:"profile"`
}

// ReferenceTable is an ordered list of references; the first match wins.
type ReferenceTable struct {
	entries []Reference
}

func ref(name, pattern string, kcal, protein, carbs, fat float64, extra ...func(*Profile)) Reference {
	p := Profile{Calories: Float(kcal), ProteinG: Float(protein), CarbsG: Float(carbs), FatG: Float(fat)}
	for _, fn := range extra {
		fn(&p)
	}
	return Reference{Name: name, Pattern: regexp.MustCompile(pattern), Profile: p}
}

func with(f Field, v float64) func(*Profile) {
	return func(p *Profile) { p.Set(f, v) }
}

// DefaultReferences are approximate USDA values for foods recognized often enough to need a fallback.
// Names are matched in English and Spanish.
var DefaultReferences = []Reference{
	ref("egg", `\b(eggs?|huevos?)\b`, 143, 12.6, 0.7, 9.5,
		with(Fiber, 0), with(Sugars, 0.4), with(Sodium, 142), with(Potassium, 138), with(Calcium, 56), with(Iron, 1.75), with(VitaminD, 82)),
	ref("bacon", `\b(bacon|tocino|tocineta|panceta)\b`, 541, 37, 1.4, 42,
		with(Sodium, 1717), with(Potassium, 565), with(Calcium, 11), with(Iron, 1.4)),
	ref("rice", `\b(rice|arroz)\b`, 130, 2.7, 28.2, 0.3,
		with(Fiber, 0.4), with(Sugars, 0.1), with(Sodium, 1), with(Potassium, 35), with(Calcium, 10), with(Iron, 0.2)),
	ref("beef", `\b(beef|steak|carne|res|bistec)\b`, 250, 26, 0, 15,
		with(Sodium, 72), with(Potassium, 318), with(Calcium, 18), with(Iron, 2.6)),
	ref("chicken", `\b(chicken|pollo)\b`, 165, 31, 0, 3.6,
		with(Sodium, 74), with(Potassium, 256), with(Calcium, 15), with(Iron, 1.0), with(VitaminD, 5)),
	ref("bread", `\b(bread|toast|pan)\b`, 265, 9, 49, 3.2,
		with(Fiber, 2.7), with(Sugars, 5), with(Sodium, 491), with(Potassium, 115), with(Calcium, 151), with(Iron, 3.6)),
	ref("cheese", `\b(cheese|queso|mozzarella|parmesan)\b`, 403, 25, 1.3, 33,
		with(Sugars, 0.5), with(Sodium, 621), with(Potassium, 98), with(Calcium, 721), with(Iron, 0.7), with(VitaminD, 24)),
	ref("pasta", `\b(pasta|spaghetti|noodles?|fideos?)\b`, 158, 5.8, 31, 0.9,
		with(Fiber, 1.8), with(Sodium, 1), with(Potassium, 44), with(Calcium, 7), with(Iron, 1.3)),
	ref("potato", `\b(potato(es)?|papas?|patatas?)\b`, 87, 1.9, 20, 0.1,
		with(Fiber, 1.8), with(Sodium, 4), with(Potassium, 379), with(Calcium, 5), with(Iron, 0.3)),
	ref("beans", `\b(beans?|frijoles?|caraotas?)\b`, 132, 8.9, 23.7, 0.5,
		with(Fiber, 8.7), with(Sodium, 1), with(Potassium, 355), with(Calcium, 27), with(Iron, 2.1)),
	ref("tortilla", `\b(tortillas?|arepas?)\b`, 218, 5.7, 44.6, 2.9,
		with(Fiber, 6.3), with(Sodium, 45), with(Potassium, 186), with(Calcium, 81), with(Iron, 1.2)),
	ref("pizza", `\bpizzas?\b`, 266, 11, 33, 10,
		with(Fiber, 2.3), with(Sugars, 3.6), with(Sodium, 598), with(Potassium, 172), with(Calcium, 188), with(Iron, 2.5)),
	ref("salmon", `\bsalm[oó]n\b`, 208, 20, 0, 13,
		with(Sodium, 59), with(Potassium, 363), with(Calcium, 9), with(Iron, 0.3), with(VitaminD, 526)),
	ref("pork", `\b(pork|cerdo|ham|jam[oó]n)\b`, 242, 27, 0, 14,
		with(Sodium, 62), with(Potassium, 423), with(Calcium, 19), with(Iron, 0.9)),
	ref("apple", `\b(apples?|manzanas?)\b`, 52, 0.3, 13.8, 0.2,
		with(Fiber, 2.4), with(Sugars, 10.4), with(Sodium, 1), with(Potassium, 107), with(Calcium, 6), with(Iron, 0.1)),
	ref("milk", `\b(milk|leche)\b`, 61, 3.2, 4.8, 3.3,
		with(Sugars, 5.1), with(Sodium, 43), with(Potassium, 132), with(Calcium, 113), with(VitaminD, 51)),
	ref("yogurt", `\b(yogh?urt|yogur)\b`, 61, 3.5, 4.7, 3.3,
		with(Sugars, 4.7), with(Sodium, 46), with(Potassium, 155), with(Calcium, 121), with(Iron, 0.1)),
}

// NewReferenceTable returns a table that consults overrides before the defaults.
func NewReferenceTable(overrides ...Reference) *ReferenceTable {
	entries := make([]Reference, 0, len(overrides)+len(DefaultReferences))
	entries = append(entries, overrides...)
	entries = append(entries, DefaultReferences...)
	return &ReferenceTable{entries: entries}
}

// Lookup returns the first reference whose pattern matches name. Names are lowercased first.
func (t *ReferenceTable) Lookup(name string) (Reference, bool) {
	if t == nil {
		return Reference{}, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Reference{}, false
	}
	for _, r := range t.entries {
		if r.Pattern.MatchString(name) {
			r.Profile = r.Profile.Clone()
			return r, true
		}
	}
	return Reference{}, false
}

// Len returns the number of entries, overrides included.
func (t *ReferenceTable) Len() int { return len(t.entries) }

// ParseReferences decodes a JSON array of {name, pattern, profile} objects. An empty pattern matches the
// name as a whole word.
func ParseReferences(raw []byte) ([]Reference, error) {
	var in []referenceJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode references: %w", err)
	}
	out := make([]Reference, 0, len(in))
	for i, r := range in {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			return nil, fmt.Errorf("reference %d: missing name", i)
		}
		pattern := r.Pattern
		if pattern == "" {
			pattern = `\b` + regexp.QuoteMeta(name) + `\b`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", name, err)
		}
		out = append(out, Reference{Name: name, Pattern: re, Profile: r.Profile})
	}
	return out, nil
}

// MarshalReferences encodes references in the form ParseReferences reads.
func MarshalReferences(refs []Reference) ([]byte, error) {
	out := make([]referenceJSON, 0, len(refs))
	for _, r := range refs {
		out = append(out, referenceJSON{Name: r.Name, Pattern: r.Pattern.String(), Profile: r.Profile})
	}
	return json.MarshalIndent(out, "", "  ")
}
