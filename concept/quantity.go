package concept

import (
	"regexp"
	"strconv"
	"strings"
)

// gramsPerUnit converts a household unit to grams. Volume units assume water-like density.
var gramsPerUnit = map[string]float64{
	"g": 1, "gr": 1, "gram": 1, "grams": 1, "gramos": 1,
	"kg": 1000,
	"mg": 0.001,
	"oz": 28.35, "ounce": 28.35, "ounces": 28.35,
	"lb": 453.6, "lbs": 453.6, "pound": 453.6, "pounds": 453.6,
	"ml": 1, "l": 1000,
	"cup": 180, "cups": 180, "taza": 180, "tazas": 180,
	"tbsp": 15, "tablespoon": 15, "tablespoons": 15, "cucharada": 15, "cucharadas": 15,
	"tsp": 5, "teaspoon": 5, "teaspoons": 5,
	"slice": 30, "slices": 30, "rebanada": 30, "rebanadas": 30,
	"piece": 100, "pieces": 100, "pieza": 100, "piezas": 100,
}

// cupGrams overrides the generic cup weight for foods whose density differs a lot from water.
var cupGrams = map[string]float64{
	"rice":     158,
	"quinoa":   185,
	"couscous": 157,
	"oatmeal":  234,
	"pasta":    140,
	"noodles":  160,
	"beans":    172,
	"lentils":  198,
	"soup":     245,
	"spinach":  30,
	"lettuce":  47,
}

// eachGrams is the weight of one countable item when no unit is given, e.g. "2 eggs".
var eachGrams = map[string]float64{
	"egg":      50,
	"tortilla": 30,
	"arepa":    120,
	"banana":   118,
	"apple":    182,
	"tomato":   123,
	"potato":   173,
	"bread":    30,
}

var quantityRe = regexp.MustCompile(`^\s*(\d+/\d+|\d+(?:[.,]\d+)?)\s*(?:([a-zA-Záéíóúñ]+)(?:\s+|$))?(?:of\s+|de\s+)?(.*)$`)

// ParseIngredient splits free text like "150 g chicken" or "1 cup rice" into a spec with a gram estimate.
// Text without a leading quantity yields a bare-name spec with unknown mass.
func ParseIngredient(text string) IngredientSpec {
	text = strings.TrimSpace(text)
	m := quantityRe.FindStringSubmatch(text)
	if m == nil {
		return IngredientSpec{Name: normalizeName(text), Confidence: 1}
	}

	amount, ok := parseAmount(m[1])
	unit := strings.ToLower(m[2])
	rest := normalizeName(m[3])

	if _, known := gramsPerUnit[unit]; unit != "" && !known {
		// "2 eggs": the word after the number is the food itself.
		rest = normalizeName(unit + " " + rest)
		unit = ""
	}
	if rest == "" || !ok {
		return IngredientSpec{Name: normalizeName(text), Confidence: 1}
	}

	spec := IngredientSpec{Name: rest, Confidence: 1}
	if unit == "" {
		spec.QuantityText = m[1]
	} else {
		spec.QuantityText = m[1] + " " + unit
	}
	if g, ok := EstimateGrams(amount, unit, rest); ok {
		spec.Grams = &g
	}
	return spec
}

// EstimateGrams converts an amount of unit of the named food to grams.
func EstimateGrams(amount float64, unit, name string) (float64, bool) {
	unit = strings.ToLower(unit)
	name = normalizeName(name)

	switch {
	case unit == "":
		if g, ok := lookup(eachGrams, name); ok {
			return amount * g, true
		}
		return 0, false
	case unit == "cup" || unit == "cups" || unit == "taza" || unit == "tazas":
		if g, ok := lookup(cupGrams, name); ok {
			return amount * g, true
		}
	}

	g, ok := gramsPerUnit[unit]
	if !ok {
		return 0, false
	}
	return amount * g, true
}

func parseAmount(s string) (float64, bool) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return f, err == nil
}

func lookup(table map[string]float64, name string) (float64, bool) {
	if g, ok := table[name]; ok {
		return g, true
	}
	g, ok := table[singular(name)]
	return g, ok
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "oes"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return strings.TrimSuffix(name, "s")
	}
	return name
}
