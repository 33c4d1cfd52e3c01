package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/concept"
	"nutrimeal/pipeline"
)

type ResolveConcepts struct{ resolver Resolver }

func NewResolveConcepts(resolver Resolver) *ResolveConcepts {
	return &ResolveConcepts{resolver: resolver}
}

func (t *ResolveConcepts) Name() string  { return "resolve_concepts" }
func (t *ResolveConcepts) Title() string { return "Resolve Vision Concepts" }
func (t *ResolveConcepts) Description() string {
	return "Filters vision labels down to foods, estimates portions and returns the meal's per-100g nutrient profile."
}

func (t *ResolveConcepts) InputSchema() *jsonschema.Schema {
	zero, one := 0.0, 1.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"concepts": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":       {Type: "string"},
						"confidence": {Type: "number", Minimum: &zero, Maximum: &one},
					},
					Required: []string{"name", "confidence"},
				},
			},
			"request_id": requestIDProperty(),
		},
		Required: []string{"concepts"},
	}
}

func (t *ResolveConcepts) OutputSchema() *jsonschema.Schema { return resultSchema() }

func (t *ResolveConcepts) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Concepts  []concept.Candidate `json:"concepts"`
		RequestID string              `json:"request_id"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return run(ctx, t.resolver, pipeline.Request{RequestID: in.RequestID, Concepts: in.Concepts})
}
