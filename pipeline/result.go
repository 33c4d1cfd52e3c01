package pipeline

import (
	"errors"
	"net/http"
	"strings"

	"nutrimeal"
	"nutrimeal/concept"
	"nutrimeal/credential"
	"nutrimeal/nutrient"
)

// ErrEmptyInput is returned for a request that carries nothing to resolve.
var ErrEmptyInput = errors.New("request needs concepts, ingredients, a code or an image")

// Request is one resolution input. Any combination of fields may be set; everything present is resolved
// into a single meal.
type Request struct {
	RequestID   string              `json:"request_id,omitempty"`
	Concepts    []concept.Candidate `json:"concepts,omitempty"`
	Ingredients []string            `json:"ingredients,omitempty"`
	Code        string              `json:"code,omitempty"`
	Image       []byte              `json:"-"`
}

func (r Request) empty() bool {
	for _, text := range r.Ingredients {
		if strings.TrimSpace(text) != "" {
			return false
		}
	}
	return len(r.Concepts) == 0 && strings.TrimSpace(r.Code) == "" && len(r.Image) == 0
}

// Adjustments records what the sanity pass changed.
type Adjustments struct {
	Clamped          []string `json:"clamped,omitempty"`
	Filled           []string `json:"filled,omitempty"`
	EnergyRecomputed bool     `json:"energy_recomputed,omitempty"`
	// Reference names the fallback food whose profile was offered to the sanity pass.
	Reference string `json:"reference,omitempty"`
}

// Result is the final per-100g profile of a meal. Base is always present; unknown fields are null.
type Result struct {
	RequestID           string                  `json:"request_id"`
	BasePer             string                  `json:"base_per"`
	Base                nutrient.Profile        `json:"base"`
	IngredientsResolved []string                `json:"ingredients_resolved"`
	TotalGrams          float64                 `json:"total_grams"`
	Meal                *nutrient.Profile       `json:"meal"`
	Sources             []string                `json:"sources"`
	Adjustments         Adjustments             `json:"adjustments"`
	Upstream            []nutrimeal.UpstreamLog `json:"upstream,omitempty"`

	errs []error
}

// Err reports why a result carries no nutrition at all, or nil when it does or when no upstream failed.
// A result that is merely unknown is not an error.
func (r *Result) Err() error {
	if r == nil || !r.Base.IsEmpty() || len(r.errs) == 0 {
		return nil
	}
	return errors.Join(r.errs...)
}

func (r *Result) fail(up nutrimeal.UpstreamLog, err error) {
	up.Error = err.Error()
	r.Upstream = append(r.Upstream, up)
	r.errs = append(r.errs, err)
}

func (r *Result) addSource(name string) {
	for _, s := range r.Sources {
		if s == name {
			return
		}
	}
	r.Sources = append(r.Sources, name)
}

// StatusCode maps a resolution error onto an HTTP status. Exhausted credentials are unavailable even
// though the last attempt carried a status; an upstream's own fatal status surfaces as a bad gateway.
func StatusCode(err error) int {
	var upErr *credential.UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, credential.ErrCredentialsExhausted):
		return http.StatusServiceUnavailable
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}
