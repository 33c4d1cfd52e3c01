package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/pipeline"
)

type ResolveIngredients struct{ resolver Resolver }

func NewResolveIngredients(resolver Resolver) *ResolveIngredients {
	return &ResolveIngredients{resolver: resolver}
}

func (t *ResolveIngredients) Name() string  { return "resolve_ingredients" }
func (t *ResolveIngredients) Title() string { return "Resolve Ingredient List" }
func (t *ResolveIngredients) Description() string {
	return `Looks up free-text ingredients such as "150 g chicken" or "1 cup rice" and returns the meal's per-100g nutrient profile.`
}

func (t *ResolveIngredients) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"ingredients": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
			"request_id": requestIDProperty(),
		},
		Required: []string{"ingredients"},
	}
}

func (t *ResolveIngredients) OutputSchema() *jsonschema.Schema { return resultSchema() }

func (t *ResolveIngredients) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Ingredients []string `json:"ingredients"`
		RequestID   string   `json:"request_id"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return run(ctx, t.resolver, pipeline.Request{RequestID: in.RequestID, Ingredients: in.Ingredients})
}
