// Package ollama labels meal photos with a local multimodal model served by Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutrimeal"
	"nutrimeal/cache"
	"nutrimeal/concept"
	"nutrimeal/credential"
)

const (
	SourceName = "ollama"

	DefaultBaseEndpoint = "http://localhost:11434"
	DefaultModelID      = "llava"
)

const systemPrompt = `You identify foods in meal photos. List every distinct food or ingredient you can see, ` +
	`using short common names in the language of the dish. Give each a confidence between 0 and 1. ` +
	`Never estimate nutrition. Reply only with JSON matching the requested format.`

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type VisionClient struct {
	endpoint   string
	model      string
	httpClient nutrimeal.HTTPClient
	timeout    time.Duration
	cache      *cache.Store
	options    options
}

type VisionOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   nutrimeal.HTTPClient
	Timeout      time.Duration
	Cache        *cache.Store
}

func NewVisionClient(opts VisionOpts) *VisionClient {
	if opts.BaseEndpoint == "" {
		opts.BaseEndpoint = DefaultBaseEndpoint
	}
	if opts.ModelID == "" {
		opts.ModelID = DefaultModelID
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		// local models are slow on first load
		opts.Timeout = 60 * time.Second
	}
	return &VisionClient{
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		cache:      opts.Cache,
		options: options{
			Temperature: 0.1,
			NumCtx:      4096,
		},
	}
}

func (c *VisionClient) Name() string { return SourceName }

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireRequest struct {
	Model    string             `json:"model"`
	Messages []wireMessage      `json:"messages"`
	Format   *jsonschema.Schema `json:"format,omitempty"`
	Stream   bool               `json:"stream"`
	Options  options            `json:"options,omitempty"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
}

// Concepts sends the image to the chat endpoint with a structured-output format. Results are cached
// per model by content hash.
func (c *VisionClient) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	key := cache.KeyForBytes(SourceName+":"+c.model, image)
	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		content, err := c.chat(ctx, image)
		if err != nil {
			return nil, err
		}
		// validate before caching so a malformed reply is retried next time
		if _, err := ParseConcepts(content); err != nil {
			return nil, err
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return ParseConcepts(body)
}

func (c *VisionClient) chat(ctx context.Context, image []byte) ([]byte, error) {
	slog.Info("OLLAMA: Invoked", "model", c.model, "image_bytes", len(image))

	reqBody := wireRequest{
		Model: c.model,
		Messages: []wireMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Which foods are on this plate?", Images: []string{base64.StdEncoding.EncodeToString(image)}},
		},
		Format:  reportSchema(),
		Stream:  false,
		Options: c.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &credential.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	return []byte(wr.Message.Content), nil
}

type report struct {
	Concepts []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"concepts"`
}

// ParseConcepts reads the model's JSON reply. Confidences outside [0,1] are clamped.
func ParseConcepts(content []byte) ([]concept.Candidate, error) {
	s := strings.TrimSpace(string(content))
	// some models wrap JSON in a fenced block despite the format
	s = strings.TrimPrefix(strings.TrimSuffix(s, "```"), "```json")
	var r report
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &r); err != nil {
		return nil, fmt.Errorf("ollama: decode concepts: %w", err)
	}
	out := make([]concept.Candidate, 0, len(r.Concepts))
	for _, c := range r.Concepts {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		out = append(out, concept.Candidate{Name: name, Confidence: min(max(c.Confidence, 0), 1)})
	}
	return out, nil
}

func reportSchema() *jsonschema.Schema {
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
		},
		Required: []string{"concepts"},
	}
}
