package concept

import (
	"fmt"
	"strings"
)

// Candidate is a labeled visual concept returned by a vision provider.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// IngredientSpec is a named food item with an estimated quantity.
type IngredientSpec struct {
	Name         string `json:"name"`
	QuantityText string `json:"quantity_text,omitempty"`
	// Grams is a best-effort mass estimate; nil means unknown and aggregation assumes 100 g.
	Grams *float64 `json:"grams"`
	// Confidence is the vision confidence the ingredient came from, or 1 for caller-supplied items.
	Confidence float64 `json:"confidence"`
}

// String renders the ingredient the way nutrient lookups expect it, e.g. "150 g chicken".
func (s IngredientSpec) String() string {
	if s.QuantityText == "" {
		return s.Name
	}
	return fmt.Sprintf("%s %s", s.QuantityText, s.Name)
}

// Strings renders every spec with String.
func Strings(specs []IngredientSpec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.String())
	}
	return out
}

// Category groups foods that vision models recognize with similar confidence.
type Category string

const (
	CategoryGrain     Category = "grain"
	CategoryProtein   Category = "protein"
	CategoryVegetable Category = "vegetable"
	CategoryDairy     Category = "dairy"
	CategoryDish      Category = "dish"
	CategoryCondiment Category = "condiment"
)

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
