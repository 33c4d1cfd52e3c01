package nutrimeal

import (
	"context"
	"net/http"

	"nutrimeal/concept"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ConceptSource labels a meal photo. It is the vision collaborator; it never does nutrition.
type ConceptSource interface {
	Name() string
	Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error)
}

// NutrientSource resolves free-text ingredient queries to raw nutrient payloads.
// An empty result with a nil error means the source had nothing for the query.
type NutrientSource interface {
	Name() string
	Nutrients(ctx context.Context, query string) ([]Lookup, error)
}

// BarcodeSource resolves a product identifier to a raw per-100g payload.
// A nil lookup with a nil error means the product is unknown.
type BarcodeSource interface {
	Name() string
	Product(ctx context.Context, code string) (*Lookup, error)
}

// Lookup is a raw upstream nutrient payload in whatever shape the provider returns.
type Lookup struct {
	Source string `json:"source"`
	// Name is the food the upstream matched, which can differ from the query.
	Name    string `json:"name,omitempty"`
	Payload []byte `json:"-"`
	// BasisGrams is the mass the payload's values describe. Zero means per 100 g.
	BasisGrams float64 `json:"basis_grams,omitempty"`
	// Grams is the eaten mass reported by the upstream, if any.
	Grams *float64 `json:"grams,omitempty"`
}

// Per100Factor returns the multiplier that rebases the payload's values onto 100 g.
func (l Lookup) Per100Factor() float64 {
	if l.BasisGrams <= 0 {
		return 1
	}
	return 100 / l.BasisGrams
}
