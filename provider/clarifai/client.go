// Package clarifai labels meal photos with a Clarifai food workflow.
package clarifai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nutrimeal"
	"nutrimeal/cache"
	"nutrimeal/concept"
	"nutrimeal/credential"
)

const (
	SourceName     = "clarifai"
	DefaultBaseURL = "https://api.clarifai.com"

	// statusSuccess is Clarifai's in-body success code; an HTTP 200 can still carry a failure.
	statusSuccess = 10000
)

type Client struct {
	endpoint string
	rotator  *credential.Rotator
	cache    *cache.Store
}

type ClientOpts struct {
	BaseURL    string
	UserID     string
	AppID      string
	WorkflowID string
	Keys       []string
	HTTPClient nutrimeal.HTTPClient
	Timeout    time.Duration
	Cache      *cache.Store
	Now        func() time.Time
}

func NewClient(opts ClientOpts) (*Client, error) {
	rotator, err := credential.NewRotator(credential.RotatorOpts{
		Name:       SourceName,
		Pool:       opts.Keys,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		Now:        opts.Now,
	})
	if err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserID == "" {
		opts.UserID = "clarifai"
	}
	if opts.AppID == "" {
		opts.AppID = "main"
	}
	if opts.WorkflowID == "" {
		opts.WorkflowID = "Food"
	}

	endpoint := fmt.Sprintf("%s/v2/users/%s/apps/%s/workflows/%s/results",
		strings.TrimRight(opts.BaseURL, "/"),
		url.PathEscape(opts.UserID), url.PathEscape(opts.AppID), url.PathEscape(opts.WorkflowID))

	return &Client{endpoint: endpoint, rotator: rotator, cache: opts.Cache}, nil
}

func (c *Client) Name() string { return SourceName }

func (c *Client) Rotator() *credential.Rotator { return c.rotator }

type imageData struct {
	Base64 string `json:"base64,omitempty"`
	URL    string `json:"url,omitempty"`
}

type input struct {
	Data struct {
		Image imageData `json:"image"`
	} `json:"data"`
}

type output struct {
	Data struct {
		Concepts []struct {
			ID    string  `json:"id"`
			Name  string  `json:"name"`
			Value float64 `json:"value"`
		} `json:"concepts"`
	} `json:"data"`
}

type response struct {
	Status struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"status"`
	Results []struct {
		Outputs []output `json:"outputs"`
	} `json:"results"`
	Outputs []output `json:"outputs"`
}

// Concepts runs the workflow over the image. Results are cached by content hash.
func (c *Client) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	in := input{}
	in.Data.Image.Base64 = base64.StdEncoding.EncodeToString(image)
	return c.run(ctx, cache.KeyForBytes("clarifai:workflow", image), in)
}

// ConceptsFromURL runs the workflow over a publicly reachable image.
func (c *Client) ConceptsFromURL(ctx context.Context, imageURL string) ([]concept.Candidate, error) {
	in := input{}
	in.Data.Image.URL = imageURL
	return c.run(ctx, cache.KeyForID("clarifai:workflow:url", imageURL), in)
}

func (c *Client) run(ctx context.Context, key string, in input) ([]concept.Candidate, error) {
	payload, err := json.Marshal(map[string]any{"inputs": []input{in}})
	if err != nil {
		return nil, err
	}

	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		resp, err := c.rotator.Call(ctx, func(ctx context.Context, token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Key "+token)
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		// Validate before caching so in-body failures are retried on the next call.
		if _, err := ParseResults(resp.Body); err != nil {
			return nil, err
		}
		slog.Info("CLARIFAI: Workflow complete", "attempts", resp.Attempts)
		return resp.Body, nil
	})
	if err != nil {
		return nil, err
	}
	return ParseResults(body)
}

// ParseResults reads concepts from a workflow response, or from a plain model response when
// there are no workflow results. A status other than success is returned as an *credential.UpstreamError.
func ParseResults(body []byte) ([]concept.Candidate, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("clarifai: decode results: %w", err)
	}
	if resp.Status.Code != statusSuccess {
		return nil, &credential.UpstreamError{
			StatusCode: http.StatusBadGateway,
			Body:       fmt.Sprintf("clarifai status %d: %s", resp.Status.Code, resp.Status.Description),
		}
	}

	outputs := resp.Outputs
	if len(resp.Results) > 0 {
		outputs = resp.Results[0].Outputs
	}

	var out []concept.Candidate
	for _, o := range outputs {
		for _, c := range o.Data.Concepts {
			name := c.Name
			if name == "" {
				name = c.ID
			}
			if name == "" {
				continue
			}
			out = append(out, concept.Candidate{Name: name, Confidence: c.Value})
		}
		if len(out) > 0 {
			break
		}
	}
	return out, nil
}
