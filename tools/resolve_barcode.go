package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/pipeline"
)

type ResolveBarcode struct{ resolver Resolver }

func NewResolveBarcode(resolver Resolver) *ResolveBarcode { return &ResolveBarcode{resolver: resolver} }

func (t *ResolveBarcode) Name() string  { return "resolve_barcode" }
func (t *ResolveBarcode) Title() string { return "Resolve Product Barcode" }
func (t *ResolveBarcode) Description() string {
	return "Looks a packaged product up by EAN/UPC code and returns its per-100g nutrient profile."
}

func (t *ResolveBarcode) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"code": {
				Type:    "string",
				Pattern: `^[0-9]{6,14}$`,
			},
			"request_id": requestIDProperty(),
		},
		Required: []string{"code"},
	}
}

func (t *ResolveBarcode) OutputSchema() *jsonschema.Schema { return resultSchema() }

func (t *ResolveBarcode) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return run(ctx, t.resolver, pipeline.Request{RequestID: in.RequestID, Code: in.Code})
}
