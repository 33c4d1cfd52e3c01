// Package logmeal talks to the LogMeal food recognition API. Every call goes through the shared
// token rotator and the response cache.
package logmeal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
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
	SourceName     = "logmeal"
	DefaultBaseURL = "https://api.logmeal.com"
)

type Client struct {
	baseURL string
	rotator *credential.Rotator
	cache   *cache.Store
}

type ClientOpts struct {
	BaseURL    string
	Tokens     []string
	HTTPClient nutrimeal.HTTPClient
	Timeout    time.Duration
	Cache      *cache.Store
	Now        func() time.Time
}

func NewClient(opts ClientOpts) (*Client, error) {
	rotator, err := credential.NewRotator(credential.RotatorOpts{
		Name:       SourceName,
		Pool:       opts.Tokens,
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
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		rotator: rotator,
		cache:   opts.Cache,
	}, nil
}

func (c *Client) Name() string { return SourceName }

// Rotator exposes the token rotator for stats.
func (c *Client) Rotator() *credential.Rotator { return c.rotator }

// Concepts uploads the image to the complete recognition endpoint. Results are cached by content hash.
func (c *Client) Concepts(ctx context.Context, image []byte) ([]concept.Candidate, error) {
	key := cache.KeyForBytes("logmeal:recognition", image)
	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		resp, err := c.rotator.Call(ctx, func(ctx context.Context, token string) (*http.Request, error) {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			part, err := w.CreateFormFile("image", "image.jpg")
			if err != nil {
				return nil, err
			}
			if _, err := part.Write(image); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/recognition/complete", &buf)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", w.FormDataContentType())
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		slog.Info("LOGMEAL: Recognition complete", "attempts", resp.Attempts, "bytes", len(image))
		return resp.Body, nil
	})
	if err != nil {
		return nil, err
	}
	return ParseRecognition(body)
}

// Product looks a barcode up through the barcode scan endpoint. Results are cached by code.
func (c *Client) Product(ctx context.Context, code string) (*nutrimeal.Lookup, error) {
	key := cache.KeyForID("logmeal:barcode", code)
	body, err := c.cache.Remember(ctx, key, func(ctx context.Context) ([]byte, error) {
		resp, err := c.rotator.Call(ctx, func(ctx context.Context, token string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/barcode_scan/"+url.PathEscape(code), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
	if err != nil {
		return nil, err
	}

	var head struct {
		ProductName string `json:"product_name"`
		Name        string `json:"name"`
	}
	_ = json.Unmarshal(body, &head)
	name := head.ProductName
	if name == "" {
		name = head.Name
	}
	return &nutrimeal.Lookup{Source: SourceName, Name: name, Payload: body}, nil
}

// recognitionListKeys are the response keys LogMeal has used for candidate lists across API versions.
var recognitionListKeys = []string{"recognition_results", "food", "predictions", "classification"}

// ParseRecognition extracts candidates from any of the recognition response shapes, including the
// per-segment lists of the complete endpoint. Confidences reported as percentages are scaled to [0,1].
func ParseRecognition(body []byte) ([]concept.Candidate, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("logmeal: decode recognition: %w", err)
	}

	var out []concept.Candidate
	collect(root, &out)
	if segments, ok := root["segmentation_results"].([]any); ok {
		for _, s := range segments {
			if m, ok := s.(map[string]any); ok {
				collect(m, &out)
			}
		}
	}
	return out, nil
}

func collect(m map[string]any, out *[]concept.Candidate) {
	for _, key := range recognitionListKeys {
		switch v := m[key].(type) {
		case []any:
			for _, item := range v {
				if c, ok := candidate(item); ok {
					*out = append(*out, c)
				}
			}
		case map[string]any:
			if c, ok := candidate(v); ok {
				*out = append(*out, c)
			}
		}
	}
}

func candidate(v any) (concept.Candidate, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return concept.Candidate{}, false
	}
	var name string
	for _, k := range []string{"name", "label", "foodName"} {
		if s, ok := m[k].(string); ok && s != "" {
			name = s
			break
		}
	}
	if name == "" {
		return concept.Candidate{}, false
	}
	for _, k := range []string{"prob", "probability", "score", "confidence"} {
		if f, ok := m[k].(float64); ok {
			if f > 1 {
				f /= 100
			}
			return concept.Candidate{Name: name, Confidence: f}, true
		}
	}
	return concept.Candidate{}, false
}
