package nutrient

import (
	"regexp"
	"strings"
)

// Language tags a name pattern.
type Language string

const (
	English Language = "en"
	Spanish Language = "es"
	// Symbol is for unit and chemical symbols shared by both languages, such as "kj" or "na".
	Symbol Language = "sym"
)

// NamePattern is one way a nutrient is spelled in an upstream key or record label.
type NamePattern struct {
	Language Language
	Pattern  *regexp.Regexp
}

func en(expr string) NamePattern { return NamePattern{English, regexp.MustCompile(expr)} }
func es(expr string) NamePattern { return NamePattern{Spanish, regexp.MustCompile(expr)} }
func sym(expr string) NamePattern { return NamePattern{Symbol, regexp.MustCompile(expr)} }

// rule maps upstream keys or record labels onto one profile field. Rules for the same field are tried
// in order and the first that yields a value wins.
type rule struct {
	field    Field
	patterns []NamePattern
	exclude  *regexp.Regexp
	// unit is assumed when neither the key, the record nor the value names one.
	unit Unit
	// factor is applied after conversion to the field's unit; 0 means 1.
	factor float64
}

// rules is ordered by field and, within a field, by preference. Patterns run against keys that were
// lowercased with separators and camelCase humps turned into single spaces.
var rules = []rule{
	{
		field:    Calories,
		patterns: []NamePattern{sym(`\bkcal\b`), en(`\bcalories?\b`), es(`calor[ií]as?`), es(`energ[ií]a`)},
		exclude:  regexp.MustCompile(`\bfrom\b|\bde grasa\b`),
		unit:     UnitKcal,
	},
	{
		field:    Calories,
		patterns: []NamePattern{sym(`\bkj\b`), en(`\bkilojoules?\b`), en(`\benergy\b`)},
		exclude:  regexp.MustCompile(`\bfrom\b`),
		unit:     UnitKJ,
	},
	{
		field:    Protein,
		patterns: []NamePattern{en(`\bproteins?\b`), es(`\bprote[ií]nas?\b`), en(`\bprot\b`)},
		unit:     UnitGram,
	},
	{
		field: Carbs,
		patterns: []NamePattern{
			en(`\bcarbohydrates?\b`), en(`\bcarbs?\b`), es(`\bcarbohidratos?\b`), es(`\bhidratos?\b`), en(`\bcarb`),
		},
		exclude: regexp.MustCompile(`\bnet\b|\bfib(er|re)\b|\bsugars?\b`),
		unit:    UnitGram,
	},
	{
		field:    Fat,
		patterns: []NamePattern{en(`\btotal fat\b`), en(`\bfat\b`), en(`\blipids?\b`), es(`\bgrasas?\b`)},
		exclude:  regexp.MustCompile(`satur|\btrans\b|mono|poly|\bfrom\b|\bacids?\b`),
		unit:     UnitGram,
	},
	{
		field:    Fiber,
		patterns: []NamePattern{en(`\bfib(er|re)s?\b`), es(`\bfibra\b`)},
		unit:     UnitGram,
	},
	{
		field:    Sugars,
		patterns: []NamePattern{en(`\bsugars?\b`), es(`\baz[uú]car(es)?\b`)},
		exclude:  regexp.MustCompile(`\badded\b|\balcohols?\b|añadid`),
		unit:     UnitGram,
	},
	{
		field:    Sodium,
		patterns: []NamePattern{en(`\bsodium\b`), es(`\bsodio\b`), sym(`\bna\b`)},
		unit:     UnitMilligram,
	},
	{
		// Salt is 39.3% sodium by mass.
		field:    Sodium,
		patterns: []NamePattern{en(`\bsalt\b`), es(`\bsal\b`)},
		unit:     UnitGram,
		factor:   0.393,
	},
	{
		field:    Potassium,
		patterns: []NamePattern{en(`\bpotassium\b`), es(`\bpotasio\b`), sym(`^k\b`)},
		exclude:  regexp.MustCompile(`\bvitamin`),
		unit:     UnitMilligram,
	},
	{
		field:    Calcium,
		patterns: []NamePattern{en(`\bcalcium\b`), es(`\bcalcio\b`), sym(`^ca\b`)},
		unit:     UnitMilligram,
	},
	{
		field:    Iron,
		patterns: []NamePattern{en(`\biron\b`), es(`\bhierro\b`), sym(`^fe\b`)},
		unit:     UnitMilligram,
	},
	{
		field: VitaminD,
		patterns: []NamePattern{
			en(`\bvitamin d\d?\b`), es(`\bvitamina d\b`), en(`\bcholecalciferol\b`), en(`\bvit d\b`),
		},
		unit: UnitIU,
	},
}

// Patterns returns the name patterns for a field across all of its rules, in the order they are tried.
func Patterns(f Field) []NamePattern {
	var out []NamePattern
	for _, r := range rules {
		if r.field == f {
			out = append(out, r.patterns...)
		}
	}
	return out
}

func (r rule) matches(key string) (int, bool) {
	if r.exclude != nil && r.exclude.MatchString(key) {
		return 0, false
	}
	for i, p := range r.patterns {
		if p.Pattern.MatchString(key) {
			return i, true
		}
	}
	return 0, false
}

// skipTokens mark keys that describe servings, daily values or metadata rather than a per-100g amount.
var skipTokens = map[string]bool{
	"unit": true, "units": true, "label": true, "value": true, "dv": true, "pct": true,
	"percent": true, "rdi": true, "modifier": true, "prepared": true, "points": true,
	"porcion": true, "porción": true, "level": true, "levels": true, "estimated": true,
}

func skipKey(tokens []string) bool {
	for _, t := range tokens {
		if skipTokens[t] || strings.HasPrefix(t, "serving") || strings.Contains(t, "score") {
			return true
		}
	}
	return false
}

// Keys that name a record and keys that carry its amount, in preference order.
var (
	labelKeys = []string{"name", "label", "nutrientName", "nutrient_name", "tag", "key", "nutrient", "id", "description"}
	valueKeys = []string{"value", "amount", "quantity", "qty", "val", "per_100g", "per100", "per100g", "kcal", "g", "mg"}
	unitKeys  = []string{"unit", "unitName", "unit_name", "units"}
)

var (
	camelRe     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	separatorRe = regexp.MustCompile(`[\s\-_./(),:\[\]]+`)
	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9]+`)
	scopeRe     = regexp.MustCompile(`^(?:per|por)?(?:100|hundred|cien)(?:g|gr|grams?|gramos?)?$`)
)

// normalizeKey lowercases a key and turns separators and camelCase humps into single spaces.
func normalizeKey(k string) string {
	k = camelRe.ReplaceAllString(k, "$1 $2")
	k = separatorRe.ReplaceAllString(strings.ToLower(k), " ")
	return strings.TrimSpace(k)
}

// isScopeKey reports whether a key names a per-100g container such as "per_100g" or "perHundredGrams".
func isScopeKey(k string) bool {
	return scopeRe.MatchString(nonAlnumRe.ReplaceAllString(strings.ToLower(k), ""))
}

// keyUnit reads an explicit unit from key tokens and reports whether the key carries a "100g" token.
func keyUnit(tokens []string) (Unit, bool) {
	unit, per100 := unitUnknown, false
	for _, t := range tokens {
		switch t {
		case "100g", "100gr", "100":
			per100 = true
			continue
		}
		if u, ok := unitTokens[t]; ok && unit == unitUnknown {
			unit = u
		}
	}
	return unit, per100
}

// impliedUnit picks the unit of a matched key. A bare "100g" suffix is the Open Food Facts convention
// and means grams for everything except energy.
func (r rule) impliedUnit(explicit Unit, per100 bool) Unit {
	switch {
	case explicit != unitUnknown:
		return explicit
	case per100 && r.unit != UnitKcal && r.unit != UnitKJ:
		return UnitGram
	}
	return r.unit
}
