package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/nutrient"
	"nutrimeal/pipeline"
)

// ErrInvalidInput wraps tool inputs that do not match the input schema.
var ErrInvalidInput = errors.New("invalid input")

// Resolver is the pipeline entry point the resolve_* tools call.
type Resolver interface {
	Resolve(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// run resolves req and flattens the result into a JSON-shaped map. A result with no nutrition because
// every upstream failed is returned as an error so transports can map it to a status.
func run(ctx context.Context, resolver Resolver, req pipeline.Request) (map[string]any, error) {
	res, err := resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	// marshal -> map[string]any to keep outputs uniform
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return m, nil
}

// decodeInput converts a tool input map into a typed struct.
func decodeInput(input map[string]any, v any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func requestIDProperty() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Optional caller-chosen id used in the resolution trace.",
	}
}

func profileSchema() *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(nutrient.Fields))
	for _, f := range nutrient.Fields {
		props[f.String()] = &jsonschema.Schema{
			Types:       []string{"number", "null"},
			Description: string(f.Unit()),
		}
	}
	return &jsonschema.Schema{Type: "object", Properties: props}
}

// resultSchema describes the output shared by every resolve_* tool.
func resultSchema() *jsonschema.Schema {
	minGrams := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"request_id": {Type: "string"},
			"base_per":   {Type: "string", Enum: []any{pipeline.BasePer}},
			"base":       profileSchema(),
			"ingredients_resolved": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
			"total_grams": {Type: "number", Minimum: &minGrams},
			"meal": {
				AnyOf: []*jsonschema.Schema{profileSchema(), {Type: "null"}},
			},
			"sources": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
			"adjustments": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"clamped":           {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"filled":            {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"energy_recomputed": {Type: "boolean"},
					"reference":         {Type: "string"},
				},
			},
			"upstream": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"source": {Type: "string"},
						"query":  {Type: "string"},
						"items":  {Type: "integer"},
						"error":  {Type: "string"},
					},
					Required: []string{"source", "items"},
				},
			},
		},
		Required: []string{"request_id", "base_per", "base", "ingredients_resolved", "total_grams", "sources"},
	}
}
