// Package nutrient holds the canonical per-100g nutrient profile and the pipeline stages that
// produce it: normalization of arbitrary upstream payloads, mass-weighted aggregation,
// and the sanity/reconciliation pass.
package nutrient

import (
	"encoding/json"
	"math"
)

// Field identifies one nutrient in a Profile.
type Field int

const (
	Calories Field = iota
	Protein
	Carbs
	Fat
	Fiber
	Sugars
	Sodium
	Potassium
	Calcium
	Iron
	VitaminD
)

// Fields lists every profile field in canonical order.
var Fields = []Field{Calories, Protein, Carbs, Fat, Fiber, Sugars, Sodium, Potassium, Calcium, Iron, VitaminD}

// CoreMacros are the fields the Atwater formula needs.
var CoreMacros = []Field{Protein, Carbs, Fat}

var fieldKeys = map[Field]string{
	Calories:  "calories",
	Protein:   "protein_g",
	Carbs:     "carbs_g",
	Fat:       "fat_g",
	Fiber:     "fiber_g",
	Sugars:    "sugars_g",
	Sodium:    "sodium_mg",
	Potassium: "potassium_mg",
	Calcium:   "calcium_mg",
	Iron:      "iron_mg",
	VitaminD:  "vitamin_d_iu",
}

// String returns the JSON key of the field.
func (f Field) String() string { return fieldKeys[f] }

// Unit returns the canonical unit the field is stored in.
func (f Field) Unit() Unit {
	switch f {
	case Calories:
		return UnitKcal
	case Protein, Carbs, Fat, Fiber, Sugars:
		return UnitGram
	case Sodium, Potassium, Calcium, Iron:
		return UnitMilligram
	case VitaminD:
		return UnitIU
	}
	return ""
}

// Profile is a nutrient record per 100 g of food. A nil field means unknown, never zero.
type Profile struct {
	Calories    *float64 `json:"calories"`
	ProteinG    *float64 `json:"protein_g"`
	CarbsG      *float64 `json:"carbs_g"`
	FatG        *float64 `json:"fat_g"`
	FiberG      *float64 `json:"fiber_g"`
	SugarsG     *float64 `json:"sugars_g"`
	SodiumMg    *float64 `json:"sodium_mg"`
	PotassiumMg *float64 `json:"potassium_mg"`
	CalciumMg   *float64 `json:"calcium_mg"`
	IronMg      *float64 `json:"iron_mg"`
	VitaminDIU  *float64 `json:"vitamin_d_iu"`
}

func (p *Profile) slot(f Field) **float64 {
	switch f {
	case Calories:
		return &p.Calories
	case Protein:
		return &p.ProteinG
	case Carbs:
		return &p.CarbsG
	case Fat:
		return &p.FatG
	case Fiber:
		return &p.FiberG
	case Sugars:
		return &p.SugarsG
	case Sodium:
		return &p.SodiumMg
	case Potassium:
		return &p.PotassiumMg
	case Calcium:
		return &p.CalciumMg
	case Iron:
		return &p.IronMg
	case VitaminD:
		return &p.VitaminDIU
	}
	panic("nutrient: unknown field")
}

// Get returns the field value and whether it is known.
func (p *Profile) Get(f Field) (float64, bool) {
	v := *p.slot(f)
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Set stores v in the field.
func (p *Profile) Set(f Field, v float64) {
	*p.slot(f) = &v
}

// Clear marks the field unknown.
func (p *Profile) Clear(f Field) {
	*p.slot(f) = nil
}

// Has reports whether the field is known.
func (p *Profile) Has(f Field) bool {
	return *p.slot(f) != nil
}

// IsEmpty reports whether every field is unknown.
func (p *Profile) IsEmpty() bool {
	for _, f := range Fields {
		if p.Has(f) {
			return false
		}
	}
	return true
}

// HasMacros reports whether protein, carbs and fat are all known.
func (p *Profile) HasMacros() bool {
	for _, f := range CoreMacros {
		if !p.Has(f) {
			return false
		}
	}
	return true
}

// Usable reports whether the profile carries energy or at least one core macro.
func (p *Profile) Usable() bool {
	if p.Has(Calories) {
		return true
	}
	for _, f := range CoreMacros {
		if p.Has(f) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; the copy shares no pointers with p.
func (p Profile) Clone() Profile {
	var out Profile
	for _, f := range Fields {
		if v, ok := p.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}

// Scale multiplies every known field by factor.
func (p Profile) Scale(factor float64) Profile {
	var out Profile
	for _, f := range Fields {
		if v, ok := p.Get(f); ok {
			out.Set(f, v*factor)
		}
	}
	return out
}

// Round rounds every known field to the given number of decimals.
func (p Profile) Round(decimals int) Profile {
	var out Profile
	for _, f := range Fields {
		if v, ok := p.Get(f); ok {
			out.Set(f, round(v, decimals))
		}
	}
	return out
}

// Map returns the profile as a JSON-shaped map with nil for unknown fields.
func (p Profile) Map() map[string]any {
	out := make(map[string]any, len(Fields))
	for _, f := range Fields {
		if v, ok := p.Get(f); ok {
			out[f.String()] = v
		} else {
			out[f.String()] = nil
		}
	}
	return out
}

// MarshalIndent is a convenience for logs and fixtures.
func (p Profile) MarshalIndent() string {
	b, _ := json.MarshalIndent(p, "", "  ")
	return string(b)
}

// Float returns a pointer to v, for building profiles in literals.
func Float(v float64) *float64 { return &v }

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
