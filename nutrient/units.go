package nutrient

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Unit is a measurement unit recognized in upstream payloads.
type Unit string

const (
	UnitKcal      Unit = "kcal"
	UnitKJ        Unit = "kJ"
	UnitGram      Unit = "g"
	UnitMilligram Unit = "mg"
	UnitMicrogram Unit = "mcg"
	UnitIU        Unit = "IU"

	unitUnknown Unit = ""
)

const (
	kjToKcal       = 0.239
	iuPerMicrogram = 40.0
)

var unitTokens = map[string]Unit{
	"kcal":       UnitKcal,
	"kj":         UnitKJ,
	"kilojoule":  UnitKJ,
	"kilojoules": UnitKJ,
	"g":          UnitGram,
	"gr":         UnitGram,
	"gram":       UnitGram,
	"grams":      UnitGram,
	"gramos":     UnitGram,
	"mg":         UnitMilligram,
	"mcg":        UnitMicrogram,
	"ug":         UnitMicrogram,
	"µg":         UnitMicrogram,
	"iu":         UnitIU,
	"ui":         UnitIU,
}

// ParseUnit maps a free-form unit string to a Unit.
func ParseUnit(s string) Unit {
	return unitTokens[strings.ToLower(strings.TrimSpace(s))]
}

var massGrams = map[Unit]float64{
	UnitGram:      1,
	UnitMilligram: 1e-3,
	UnitMicrogram: 1e-6,
}

// Convert converts v from one unit to another. It reports false for incompatible units.
func Convert(v float64, from, to Unit) (float64, bool) {
	if from == to {
		return v, true
	}
	if from == UnitKJ && to == UnitKcal {
		return v * kjToKcal, true
	}
	if from == UnitKcal && to == UnitKJ {
		return v / kjToKcal, true
	}

	fromG, fromMass := massGrams[from]
	toG, toMass := massGrams[to]
	switch {
	case fromMass && toMass:
		return v * fromG / toG, true
	case fromMass && to == UnitIU:
		return v * fromG / massGrams[UnitMicrogram] * iuPerMicrogram, true
	case from == UnitIU && toMass:
		return v / iuPerMicrogram * massGrams[UnitMicrogram] / toG, true
	}
	return 0, false
}

var valueRe = regexp.MustCompile(`(?i)^[<>~≈]?\s*(-?\d+(?:[.,]\d+)?)\s*(kcal|kj|mcg|µg|ug|mg|g|iu|ui)?\b`)

// parseValue reads a numeric JSON value or a numeric string such as "13 g", "1,1" or "250 kJ".
// The returned unit is empty when the value carries none.
func parseValue(v any) (float64, Unit, bool) {
	switch n := v.(type) {
	case float64:
		return n, unitUnknown, true
	case json.Number:
		f, err := n.Float64()
		return f, unitUnknown, err == nil
	case int:
		return float64(n), unitUnknown, true
	case string:
		m := valueRe.FindStringSubmatch(strings.TrimSpace(n))
		if m == nil {
			return 0, unitUnknown, false
		}
		f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			return 0, unitUnknown, false
		}
		return f, ParseUnit(m[2]), true
	}
	return 0, unitUnknown, false
}
