// Package bedrock labels meal photos with a multimodal model on Amazon Bedrock. The model is forced
// to answer through a single tool so the reply is always structured.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal/cache"
	"nutrimeal/concept"
)

const (
	SourceName = "bedrock"

	// defaultModelID is an inference profile ID, not the foundation model's ID.
	defaultModelID = "us.anthropic.claude-3-haiku-20240307-v1:0"

	defaultMaxTokens = 512
	defaultTimeout   = 20 * time.Second

	// Low temperature keeps the labels stable for the same photo.
	defaultTemperature = 0.1

	reportTool = "report_concepts"
)

const systemPrompt = `You identify foods in meal photos. List every distinct food or ingredient you can see, ` +
	`using short common names in the language of the dish (for example "arepa", "queso", "arroz"). ` +
	`Give each a confidence between 0 and 1. Never estimate nutrition. Always answer by calling ` + reportTool + `.`

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type VisionOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	// Timeout bounds each Converse call. Defaults to 20s.
	Timeout     time.Duration
	Cache       *cache.Store
}

type VisionClient struct {
	brc  bedrockRuntimeClient
	opts VisionOptions
}

func NewVisionClient(brc bedrockRuntimeClient, opts VisionOptions) *VisionClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &VisionClient{brc: brc, opts: opts}
}

func (c *VisionClient) Name() string { return SourceName }

// Concepts asks the model for the foods in the image. The raw tool input is cached by content hash.
func (c *VisionClient) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	format, err := imageFormat(image)
	if err != nil {
		return nil, err
	}

	key := cache.KeyForBytes("bedrock:"+c.opts.ModelID, image)
	body, err := c.opts.Cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
		defer cancel()
		return c.converse(ctx, image, format)
	})
	if err != nil {
		return nil, err
	}
	return ParseConcepts(body)
}

func (c *VisionClient) converse(ctx context.Context, image []byte, format types.ImageFormat) ([]byte, error) {
	spec, err := toolSpec()
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.opts.ModelID),
		System:  []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberImage{Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: image},
				}},
				&types.ContentBlockMemberText{Value: "What foods are on this plate?"},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools:      []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(reportTool)}},
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("BEDROCK: Converse failed", "model", c.opts.ModelID, "error", err)
		return nil, err
	}
	if out.Usage != nil {
		slog.Info("BEDROCK: Converse succeeded",
			"stop_reason", out.StopReason,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		return nil, errors.New("bedrock: model hit MaxTokens before finishing the concept list")
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return nil, errors.New("bedrock: response blocked by safety filters")
	}
	return toolInput(out)
}

type conceptsInput struct {
	Concepts []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"concepts"`
}

// ParseConcepts reads the report tool's input. Confidences outside [0,1] are clamped.
func ParseConcepts(body []byte) ([]concept.Candidate, error) {
	var in conceptsInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("bedrock: decode concepts: %w", err)
	}
	out := make([]concept.Candidate, 0, len(in.Concepts))
	for _, c := range in.Concepts {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		out = append(out, concept.Candidate{Name: name, Confidence: min(max(c.Confidence, 0), 1)})
	}
	return out, nil
}

// toolInput returns the report tool's input as JSON. A model that ignored the tool but answered with
// a JSON object in text is accepted too.
func toolInput(out *bedrockruntime.ConverseOutput) ([]byte, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, errors.New("bedrock: no message in output")
	}
	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || aws.ToString(tu.Value.Name) != reportTool || tu.Value.Input == nil {
			continue
		}
		var input map[string]any
		if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
			return nil, fmt.Errorf("bedrock: decode tool input: %w", err)
		}
		return json.Marshal(input)
	}
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok {
			s := strings.TrimSpace(t.Value)
			if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
				return []byte(s), nil
			}
		}
	}
	return nil, errors.New("bedrock: model did not report concepts")
}

func toolSpec() (types.ToolSpecification, error) {
	zero, one := 0.0, 1.0
	schema := &jsonschema.Schema{
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
		},
		Required: []string{"concepts"},
	}

	// Round-trip through JSON so the schema's own MarshalJSON decides the wire shape.
	raw, err := json.Marshal(schema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("marshal %s schema: %w", reportTool, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("unmarshal %s schema: %w", reportTool, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(reportTool),
		Description: aws.String("Report the foods visible in the photo with a confidence for each."),
		InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(m)},
	}, nil
}

func imageFormat(image []byte) (types.ImageFormat, error) {
	switch http.DetectContentType(image) {
	case "image/jpeg":
		return types.ImageFormatJpeg, nil
	case "image/png":
		return types.ImageFormatPng, nil
	case "image/gif":
		return types.ImageFormatGif, nil
	case "image/webp":
		return types.ImageFormatWebp, nil
	}
	return "", errors.New("bedrock: unsupported image format")
}
