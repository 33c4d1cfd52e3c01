package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/pipeline"
)

type ResolveImage struct{ resolver Resolver }

func NewResolveImage(resolver Resolver) *ResolveImage { return &ResolveImage{resolver: resolver} }

func (t *ResolveImage) Name() string  { return "resolve_image" }
func (t *ResolveImage) Title() string { return "Resolve Meal Photo" }
func (t *ResolveImage) Description() string {
	return "Labels a base64-encoded meal photo with the configured vision provider and returns the meal's per-100g nutrient profile."
}

func (t *ResolveImage) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"image": {
				Type:            "string",
				ContentEncoding: "base64",
				Description:     "JPEG, PNG, GIF or WebP bytes; a data: URL prefix is accepted.",
			},
			"request_id": requestIDProperty(),
		},
		Required: []string{"image"},
	}
}

func (t *ResolveImage) OutputSchema() *jsonschema.Schema { return resultSchema() }

func (t *ResolveImage) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in struct {
		Image     string `json:"image"`
		RequestID string `json:"request_id"`
	}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	image, err := DecodeImage(in.Image)
	if err != nil {
		return nil, err
	}
	return run(ctx, t.resolver, pipeline.Request{RequestID: in.RequestID, Image: image})
}

// DecodeImage decodes standard base64, with or without a data URL prefix.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not base64: %w", ErrInvalidInput, err)
	}
	return b, nil
}
